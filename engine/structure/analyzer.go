package structure

import (
	"context"
	"log/slog"
	"strings"

	"github.com/intellidevice/engine/engine/domain"
	"github.com/intellidevice/engine/engine/terminology"
)

// Matcher is the vocabulary search dependency. *terminology.Service and
// *terminology.Index both satisfy it.
type Matcher interface {
	Search(text string, categories []string, topK int, threshold float64) (map[string][]terminology.Match, error)
}

// Analyzer extracts the five structured fields from a narrative. It is pure
// over (input, vocabulary state): same input and index always produce the
// same record.
type Analyzer struct {
	matcher Matcher
	opts    Options
	log     *slog.Logger
}

// NewAnalyzer wires an analyzer over a vocabulary matcher.
func NewAnalyzer(m Matcher, opts Options, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = FieldTopK
	}
	if opts.Threshold <= 0 {
		opts.Threshold = FieldThreshold
	}
	if opts.Fallbacks == (FallbackLabels{}) {
		opts.Fallbacks = DefaultFallbacks()
	}
	return &Analyzer{matcher: m, opts: opts, log: log}
}

// Input is one narrative to structure.
type Input struct {
	Narrative   string
	DeviceHint  string
	ActionTaken string
}

// severityImpact maps a classified severity to a health-impact label.
var severityImpact = map[domain.Severity]string{
	domain.SeverityDeath:    "死亡",
	domain.SeveritySevere:   "重度伤害",
	domain.SeverityModerate: "中度伤害",
	domain.SeverityMild:     "轻度伤害",
	domain.SeverityNone:     "无伤害",
}

// Analyze produces the structured record for one narrative. Ambiguity never
// becomes an error: every field resolves to a match, a keyword-derived value,
// or its fallback label, with confidence graded accordingly.
func (a *Analyzer) Analyze(ctx context.Context, in Input) domain.StructuredRecord {
	text := strings.TrimSpace(in.Narrative)

	rec := domain.StructuredRecord{
		FieldConfidence: make(map[domain.Field]float64, len(domain.Fields)),
	}

	a.extractDeviceIssue(&rec, text, in.DeviceHint)
	a.extractFailureMode(ctx, &rec, text)
	a.extractManifestation(ctx, &rec, text)
	a.extractHealthImpact(ctx, &rec, text)
	a.extractTreatmentAction(&rec, text, in.ActionTaken)

	total := 0.0
	for _, f := range domain.Fields {
		total += rec.FieldConfidence[f]
	}
	rec.Confidence = total / float64(len(domain.Fields))
	return rec
}

// extractDeviceIssue collects the first keyword hit from each issue cluster.
// No vocabulary dependency.
func (a *Analyzer) extractDeviceIssue(rec *domain.StructuredRecord, text, deviceHint string) {
	var hits []string
	for _, cluster := range deviceIssueClusters {
		for _, kw := range cluster.keywords {
			if strings.Contains(text, kw) {
				hits = append(hits, kw)
				break
			}
		}
	}
	if len(hits) > 0 {
		rec.DeviceIssue = strings.Join(hits, "、")
		rec.FieldConfidence[domain.FieldDeviceIssue] = ConfidenceMid
		return
	}
	rec.DeviceIssue = deviceHint + a.opts.Fallbacks.DeviceMalfunction
	rec.FieldConfidence[domain.FieldDeviceIssue] = ConfidenceFloor
}

func (a *Analyzer) extractFailureMode(ctx context.Context, rec *domain.StructuredRecord, text string) {
	if m, ok := a.bestMatch(ctx, text, CategoryFailureMode); ok {
		a.setMatched(rec, domain.FieldFailureMode, m)
		return
	}
	for _, rule := range failureModeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				rec.FailureMode = rule.label(a.opts.Fallbacks)
				rec.FieldConfidence[domain.FieldFailureMode] = ConfidenceMid
				return
			}
		}
	}
	rec.FailureMode = a.opts.Fallbacks.UnknownFailureMode
	rec.FieldConfidence[domain.FieldFailureMode] = ConfidenceFloor
}

func (a *Analyzer) extractManifestation(ctx context.Context, rec *domain.StructuredRecord, text string) {
	if m, ok := a.bestMatch(ctx, text, CategoryManifestation); ok {
		a.setMatched(rec, domain.FieldClinicalManifestation, m)
		return
	}
	for _, cluster := range clinicalClusters {
		for _, kw := range cluster.keywords {
			if strings.Contains(text, kw) {
				rec.ClinicalManifestation = kw + "异常"
				rec.FieldConfidence[domain.FieldClinicalManifestation] = ConfidenceMid
				return
			}
		}
	}
	rec.ClinicalManifestation = a.opts.Fallbacks.UnclassifiedManifestation
	rec.FieldConfidence[domain.FieldClinicalManifestation] = ConfidenceFloor
}

func (a *Analyzer) extractHealthImpact(ctx context.Context, rec *domain.StructuredRecord, text string) {
	if m, ok := a.bestMatch(ctx, text, CategoryHealthImpact); ok {
		a.setMatched(rec, domain.FieldHealthImpact, m)
		return
	}
	// Derive from the severity classifier only when it found actual
	// evidence; a default "none" carries no signal.
	sev, evidence := domain.ClassifySeverityEvidence(text)
	if len(evidence) > 0 {
		rec.HealthImpact = severityImpact[sev]
		rec.FieldConfidence[domain.FieldHealthImpact] = ConfidenceMid
		return
	}
	rec.HealthImpact = a.opts.Fallbacks.UnclassifiedImpact
	rec.FieldConfidence[domain.FieldHealthImpact] = ConfidenceFloor
}

// extractTreatmentAction takes the reported action verbatim; it is never
// passed through term matching.
func (a *Analyzer) extractTreatmentAction(rec *domain.StructuredRecord, text, actionTaken string) {
	if v := strings.TrimSpace(actionTaken); v != "" {
		rec.TreatmentAction = v
		rec.FieldConfidence[domain.FieldTreatmentAction] = ConfidenceMid
		return
	}
	for _, kw := range actionKeywords {
		if strings.Contains(text, kw) {
			rec.TreatmentAction = kw
			rec.FieldConfidence[domain.FieldTreatmentAction] = ConfidenceMid
			return
		}
	}
	rec.TreatmentAction = a.opts.Fallbacks.UnclassifiedAction
	rec.FieldConfidence[domain.FieldTreatmentAction] = ConfidenceFloor
}

// bestMatch returns the highest-scoring vocabulary match for text in one
// category. Search failures (vocabulary not loaded, category absent) degrade
// to no match rather than aborting extraction.
func (a *Analyzer) bestMatch(ctx context.Context, text, category string) (terminology.Match, bool) {
	if text == "" || a.matcher == nil {
		return terminology.Match{}, false
	}
	res, err := a.matcher.Search(text, []string{category}, a.opts.TopK, a.opts.Threshold)
	if err != nil {
		a.log.DebugContext(ctx, "vocabulary lookup degraded to keyword extraction",
			"category", category, "error", err)
		return terminology.Match{}, false
	}
	matches := res[category]
	if len(matches) == 0 {
		return terminology.Match{}, false
	}
	return matches[0], true
}

// setMatched records a vocabulary-backed field value. Matched terms
// contribute their similarity to field confidence.
func (a *Analyzer) setMatched(rec *domain.StructuredRecord, field domain.Field, m terminology.Match) {
	rec.SetValue(field, m.Term.Label)
	rec.FieldConfidence[field] = m.Score
	rec.MatchedTerms = append(rec.MatchedTerms, domain.MatchedTerm{
		Field:      field,
		Category:   m.Term.Category,
		Code:       m.Term.Code,
		Term:       m.Term.Label,
		Similarity: m.Score,
	})
}
