package risk

import (
	"context"
	"log/slog"
	"sort"

	"github.com/intellidevice/engine/engine/graph"
)

// Analyzer runs the five detection rules over a snapshot.
type Analyzer struct {
	log *slog.Logger
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{log: log}
}

type rule struct {
	typ RuleType
	fn  func(context.Context, *snapshotIndex) []Signal
}

var rules = []rule{
	{RuleSevereCluster, severeClusterRule},
	{RuleFrequentFailure, frequentFailureRule},
	{RuleDeviceModel, deviceModelRule},
	{RuleManufacturer, manufacturerRule},
	{RuleDeviceInjury, deviceInjuryRule},
}

// Analyze evaluates every rule and returns the ranked signals. Cancellation
// stops between rules and entities; signals already collected are returned
// alongside the context error.
func (a *Analyzer) Analyze(ctx context.Context, snap graph.Snapshot) ([]Signal, error) {
	idx := indexSnapshot(snap)

	var signals []Signal
	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			a.log.WarnContext(ctx, "risk analysis aborted", "completed_signals", len(signals))
			sortSignals(signals)
			return signals, err
		}
		found := r.fn(ctx, idx)
		signals = append(signals, found...)
		a.log.DebugContext(ctx, "rule evaluated", "rule", string(r.typ), "signals", len(found))
	}

	sortSignals(signals)
	return signals, nil
}

// Summarize runs Analyze and buckets the results by level.
func (a *Analyzer) Summarize(ctx context.Context, snap graph.Snapshot) (Summary, error) {
	signals, err := a.Analyze(ctx, snap)
	sum := Summary{Total: len(signals), Signals: signals}
	for _, s := range signals {
		switch s.Level {
		case LevelHigh:
			sum.High++
		case LevelMedium:
			sum.Medium++
		default:
			sum.Low++
		}
	}
	return sum, err
}

// sortSignals orders by descending score, then rule priority, then entity
// key, so repeated runs over the same snapshot rank identically.
func sortSignals(signals []Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Score != signals[j].Score {
			return signals[i].Score > signals[j].Score
		}
		pi, pj := rulePriority[signals[i].Type], rulePriority[signals[j].Type]
		if pi != pj {
			return pi < pj
		}
		return signals[i].EntityKey < signals[j].EntityKey
	})
}
