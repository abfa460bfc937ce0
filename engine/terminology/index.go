package terminology

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/intellidevice/engine/engine/domain"
)

// Index is an immutable similarity index over a vocabulary. Build once with
// NewIndex; all methods are safe for unlimited concurrent readers.
type Index struct {
	terms  map[string][]Term
	spaces map[string]*vectorSpace
	// normalized label and alias forms, precomputed per term.
	normLabels  map[string][]string
	normAliases map[string][][]string
}

// NewIndex builds the index: per-category TF-IDF spaces plus normalized label
// and alias forms for the lexical signals.
func NewIndex(vocab Vocabulary) *Index {
	idx := &Index{
		terms:       make(map[string][]Term, len(vocab)),
		spaces:      make(map[string]*vectorSpace, len(vocab)),
		normLabels:  make(map[string][]string, len(vocab)),
		normAliases: make(map[string][][]string, len(vocab)),
	}
	for category, terms := range vocab {
		owned := make([]Term, len(terms))
		copy(owned, terms)
		idx.terms[category] = owned
		idx.spaces[category] = buildVectorSpace(owned)

		labels := make([]string, len(owned))
		aliases := make([][]string, len(owned))
		for i, t := range owned {
			labels[i] = normalizeText(t.Label)
			al := make([]string, 0, len(t.Aliases))
			for _, a := range t.Aliases {
				if n := normalizeText(a); n != "" {
					al = append(al, n)
				}
			}
			aliases[i] = al
		}
		idx.normLabels[category] = labels
		idx.normAliases[category] = aliases
	}
	return idx
}

// Categories lists the loaded category codes in sorted order.
func (idx *Index) Categories() []string {
	out := make([]string, 0, len(idx.terms))
	for c := range idx.terms {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// TermCount returns the number of terms in a category.
func (idx *Index) TermCount(category string) int {
	return len(idx.terms[category])
}

// TotalTerms returns the number of terms across all categories.
func (idx *Index) TotalTerms() int {
	total := 0
	for _, terms := range idx.terms {
		total += len(terms)
	}
	return total
}

// lexicalScore fuses character-bigram and token overlap between two
// normalized strings. Exact match and containment short-circuit.
func lexicalScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return exactScore
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return containmentScore
	}
	jTok := jaccard(tokens(a), tokens(b))
	jBig := jaccard(bigrams(a), bigrams(b))
	fused := jTok*0.8 + jBig*0.2
	if jBig > fused {
		return jBig
	}
	return fused
}

// scoreTerm fuses the three signals for one term: lexical score against the
// label, best alias score, and TF-IDF cosine. An alias hit at or above the
// near-exact mark earns the fixed bonus, capped at 1.
func (idx *Index) scoreTerm(category string, i int, normText string, query []float64) float64 {
	s := lexicalScore(normText, idx.normLabels[category][i])

	aliasScore := 0.0
	for _, a := range idx.normAliases[category][i] {
		if strings.Contains(normText, a) {
			aliasScore = aliasHitScore
			break
		}
		if v := lexicalScore(normText, a); v > aliasScore {
			aliasScore = v
		}
	}
	if aliasScore > s {
		s = aliasScore
	}
	if v := idx.spaces[category].cosine(query, i); v > s {
		s = v
	}
	if aliasScore >= aliasHitScore {
		s += aliasBonus
		if s > 1 {
			s = 1
		}
	}
	return s
}

// Score returns the similarity between free text and one term. The term's
// category must be loaded; unknown categories score with lexical signals only.
func (idx *Index) Score(text string, t Term) float64 {
	normText := normalizeText(text)
	if terms, ok := idx.terms[t.Category]; ok {
		for i := range terms {
			if terms[i].Label == t.Label && terms[i].Code == t.Code {
				space := idx.spaces[t.Category]
				return idx.scoreTerm(t.Category, i, normText, space.queryVector(normText))
			}
		}
	}
	s := lexicalScore(normText, normalizeText(t.Label))
	for _, a := range t.Aliases {
		n := normalizeText(a)
		if n == "" {
			continue
		}
		if strings.Contains(normText, n) {
			if s < aliasHitScore {
				s = aliasHitScore
			}
			s += aliasBonus
			if s > 1 {
				s = 1
			}
			break
		}
		if v := lexicalScore(normText, n); v > s {
			s = v
		}
	}
	return s
}

// Search scores every term in the requested categories against text, filters
// by threshold, and returns at most topK matches per category ordered by
// descending score. Ties break by shorter label, then lexical order. A nil or
// empty categories slice searches every loaded category; unknown categories
// are rejected.
func (idx *Index) Search(text string, categories []string, topK int, threshold float64) (map[string][]Match, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(categories) == 0 {
		categories = idx.Categories()
	}
	for _, c := range categories {
		if _, ok := idx.terms[c]; !ok {
			return nil, fmt.Errorf("terminology: category %q: %w", c, domain.ErrUnknownCategory)
		}
	}

	normText := normalizeText(text)
	out := make(map[string][]Match, len(categories))
	for _, c := range categories {
		terms := idx.terms[c]
		query := idx.spaces[c].queryVector(normText)

		matches := make([]Match, 0, len(terms))
		for i := range terms {
			s := idx.scoreTerm(c, i, normText, query)
			if s >= threshold {
				matches = append(matches, Match{Term: terms[i], Score: s})
			}
		}
		sort.SliceStable(matches, func(a, b int) bool {
			if matches[a].Score != matches[b].Score {
				return matches[a].Score > matches[b].Score
			}
			la := utf8.RuneCountInString(matches[a].Term.Label)
			lb := utf8.RuneCountInString(matches[b].Term.Label)
			if la != lb {
				return la < lb
			}
			return matches[a].Term.Label < matches[b].Term.Label
		})
		if len(matches) > topK {
			matches = matches[:topK]
		}
		out[c] = matches
	}
	return out, nil
}
