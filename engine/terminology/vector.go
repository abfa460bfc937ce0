package terminology

import "math"

// vectorSpace is a per-category TF-IDF space over term labels and aliases.
// Term vectors are L2-normalized at build time so similarity is a dot product.
type vectorSpace struct {
	vocab    map[string]int
	idf      []float64
	termVecs [][]float64
}

// buildVectorSpace constructs the TF-IDF space for one category. Each term
// contributes one document: the token set of its label plus all aliases.
func buildVectorSpace(terms []Term) *vectorSpace {
	docs := make([][]string, len(terms))
	for i, t := range terms {
		toks := tokens(normalizeText(t.Label))
		for _, a := range t.Aliases {
			toks = append(toks, tokens(normalizeText(a))...)
		}
		docs[i] = dedupe(toks)
	}

	vocab := make(map[string]int)
	for _, doc := range docs {
		for _, tok := range doc {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}
	if len(vocab) == 0 {
		return &vectorSpace{vocab: vocab}
	}

	n := float64(len(docs))
	df := make([]float64, len(vocab))
	for _, doc := range docs {
		for _, tok := range doc {
			df[vocab[tok]]++
		}
	}
	idf := make([]float64, len(vocab))
	for i := range idf {
		idf[i] = math.Log((n+1)/(df[i]+1)) + 1
	}

	vecs := make([][]float64, len(docs))
	for i, doc := range docs {
		v := make([]float64, len(vocab))
		for _, tok := range doc {
			v[vocab[tok]]++
		}
		applyIDF(v, idf)
		normalize(v)
		vecs[i] = v
	}
	return &vectorSpace{vocab: vocab, idf: idf, termVecs: vecs}
}

// queryVector builds the normalized TF-IDF vector for query text, or nil when
// no token falls inside the category vocabulary.
func (s *vectorSpace) queryVector(text string) []float64 {
	if len(s.vocab) == 0 {
		return nil
	}
	toks := tokens(text)
	if len(toks) == 0 {
		return nil
	}
	v := make([]float64, len(s.vocab))
	hit := false
	for _, tok := range toks {
		if i, ok := s.vocab[tok]; ok {
			v[i]++
			hit = true
		}
	}
	if !hit {
		return nil
	}
	applyIDF(v, s.idf)
	normalize(v)
	return v
}

// cosine returns the similarity between the query vector and term i.
func (s *vectorSpace) cosine(query []float64, i int) float64 {
	if query == nil || i >= len(s.termVecs) {
		return 0
	}
	return dot(query, s.termVecs[i])
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func applyIDF(v, idf []float64) {
	for i := range v {
		v[i] *= idf[i]
	}
}

func normalize(v []float64) {
	n := math.Sqrt(dot(v, v))
	if n == 0 {
		return
	}
	for i := range v {
		v[i] /= n
	}
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		if _, ok := seen[it]; !ok {
			seen[it] = struct{}{}
			out = append(out, it)
		}
	}
	return out
}
