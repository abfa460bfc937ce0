// Package terminology loads the controlled vocabulary and exposes similarity
// search over it. An Index is immutable once built; Service wraps an Index
// behind an atomic pointer so reloads never expose a half-built vocabulary.
package terminology

// Term is one standard term from the controlled vocabulary.
type Term struct {
	Category   string   `json:"category"`
	Code       string   `json:"code,omitempty"`
	Label      string   `json:"label"`
	Definition string   `json:"definition,omitempty"`
	Aliases    []string `json:"aliases,omitempty"`
	// Hierarchy is the pipe-separated code path from root to this term,
	// e.g. "A|A03|A0302". Used for parent links on graph import.
	Hierarchy string `json:"hierarchy,omitempty"`
}

// Vocabulary maps a category code (A–G) to its terms.
type Vocabulary map[string][]Term

// Match pairs a term with the similarity score it earned against a query.
type Match struct {
	Term  Term    `json:"term"`
	Score float64 `json:"score"`
}

// Default search tuning.
const (
	DefaultTopK      = 5
	DefaultThreshold = 0.3

	// Score landmarks: exact label match, containment either way, and the
	// bonus applied when an alias matches near-exactly.
	exactScore       = 1.0
	containmentScore = 0.9
	aliasHitScore    = 0.9
	aliasBonus       = 0.1
)
