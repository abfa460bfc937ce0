package structure

import (
	"context"
	"strings"

	"github.com/intellidevice/engine/engine/domain"
)

// Structurer is the text-structuring fallback capability (the LLM path).
// The analyzer never calls it; the orchestrating layer invokes it when
// rule-based confidence lands in the review band and merges the result.
type Structurer interface {
	Structure(ctx context.Context, text string, topK int) (domain.StructuredRecord, error)
}

// isFallback reports whether a field landed on its fallback label (floor
// confidence, no vocabulary or keyword backing).
func isFallback(rec domain.StructuredRecord, f domain.Field) bool {
	return rec.FieldConfidence[f] <= ConfidenceFloor || strings.TrimSpace(rec.Value(f)) == ""
}

// Merge folds a fallback-capability record into a rule-based one. Fields the
// rules resolved with real signal win; fields stuck at their fallback value
// take the capability's answer at mid confidence. Matched terms from both
// sides are kept and overall confidence is recomputed.
func Merge(base, extra domain.StructuredRecord) domain.StructuredRecord {
	out := base
	out.FieldConfidence = make(map[domain.Field]float64, len(domain.Fields))
	for f, c := range base.FieldConfidence {
		out.FieldConfidence[f] = c
	}

	for _, f := range domain.Fields {
		v := strings.TrimSpace(extra.Value(f))
		if v == "" || !isFallback(base, f) {
			continue
		}
		out.SetValue(f, v)
		conf := extra.FieldConfidence[f]
		if conf <= 0 {
			conf = ConfidenceMid
		}
		out.FieldConfidence[f] = conf
	}

	seen := make(map[domain.MatchedTerm]struct{}, len(base.MatchedTerms))
	for _, t := range base.MatchedTerms {
		seen[t] = struct{}{}
	}
	for _, t := range extra.MatchedTerms {
		if _, ok := seen[t]; !ok {
			out.MatchedTerms = append(out.MatchedTerms, t)
		}
	}

	total := 0.0
	for _, f := range domain.Fields {
		total += out.FieldConfidence[f]
	}
	out.Confidence = total / float64(len(domain.Fields))
	return out
}
