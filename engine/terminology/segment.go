package terminology

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-ego/gse"
)

var (
	segOnce sync.Once
	seg     gse.Segmenter
	segErr  error
)

// segmenter returns the shared CJK segmenter, loading the embedded dictionary
// on first use.
func segmenter() (*gse.Segmenter, error) {
	segOnce.Do(func() {
		segErr = seg.LoadDict()
	})
	if segErr != nil {
		return nil, segErr
	}
	return &seg, nil
}

// normalizeText canonicalizes free text for matching: full-width punctuation
// folded, separators spaced out, trimmed, lowercased.
func normalizeText(s string) string {
	r := strings.NewReplacer(
		"，", ",",
		"。", ".",
		"/", " /",
		"、", " ",
	)
	return strings.ToLower(strings.TrimSpace(r.Replace(s)))
}

// bigrams returns the character-bigram set of s. Single-rune input yields
// itself so short terms still participate in overlap scoring.
func bigrams(s string) []string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) < 2 {
		return []string{string(runes)}
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}

// tokens segments s into words of at least two runes. When the segmenter
// dictionary is unavailable the whole string is the single token, which
// degrades token overlap toward exact matching rather than failing.
func tokens(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	sg, err := segmenter()
	if err != nil {
		return []string{s}
	}
	var out []string
	for _, tok := range sg.Cut(s, true) {
		if utf8.RuneCountInString(tok) >= 2 {
			out = append(out, tok)
		}
	}
	return out
}

// stringSet builds a membership set.
func stringSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// jaccard computes set overlap between two string slices.
func jaccard(a, b []string) float64 {
	as, bs := stringSet(a), stringSet(b)
	if len(as) == 0 && len(bs) == 0 {
		return 0
	}
	inter := 0
	for k := range as {
		if _, ok := bs[k]; ok {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
