package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/intellidevice/engine/engine/domain"
	"github.com/intellidevice/engine/engine/terminology"
)

// ImportStandardTerms mirrors the controlled vocabulary into the graph:
// StandardTerm nodes keyed by code, IS_SUBTERM_OF links derived from the code
// hierarchy, and HAS_SYNONYM links for aliases. Returns the number of terms
// imported.
func (s *Store) ImportStandardTerms(ctx context.Context, vocab terminology.Vocabulary) (int, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	count := 0
	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		for category, terms := range vocab {
			for _, t := range terms {
				if t.Code == "" {
					continue
				}
				cypher := `MERGE (t:StandardTerm {code: $code})
				           SET t.termName = $term,
				               t.definition = $definition,
				               t.codeHierarchy = $hierarchy,
				               t.category = $category`
				if _, err := tx.Run(ctx, cypher, map[string]any{
					"code":       t.Code,
					"term":       t.Label,
					"definition": t.Definition,
					"hierarchy":  t.Hierarchy,
					"category":   category,
				}); err != nil {
					return nil, err
				}
				count++

				if parent := parentCode(t.Hierarchy); parent != "" {
					cypher = `MATCH (c:StandardTerm {code: $child}), (p:StandardTerm {code: $parent})
					          MERGE (c)-[:IS_SUBTERM_OF]->(p)`
					if _, err := tx.Run(ctx, cypher, map[string]any{
						"child": t.Code, "parent": parent,
					}); err != nil {
						return nil, err
					}
				}

				for _, alias := range t.Aliases {
					cypher = `MATCH (t:StandardTerm {code: $code})
					          MERGE (s:Synonym {name: $alias})
					          MERGE (t)-[:HAS_SYNONYM]->(s)`
					if _, err := tx.Run(ctx, cypher, map[string]any{
						"code": t.Code, "alias": alias,
					}); err != nil {
						return nil, err
					}
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return 0, fmt.Errorf("graph: import terms: %w: %v", domain.ErrGraphWrite, err)
	}
	s.log.InfoContext(ctx, "standard terms imported", "terms", count)
	return count, nil
}

// parentCode returns the second-to-last element of a pipe-separated code
// hierarchy, or empty when the term is a root.
func parentCode(hierarchy string) string {
	if !strings.Contains(hierarchy, "|") {
		return ""
	}
	parts := strings.Split(hierarchy, "|")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[len(parts)-2])
}

// TermRef is a lightweight reference to a standard term or synonym.
type TermRef struct {
	Code string `json:"code,omitempty"`
	Name string `json:"name"`
}

// TermNeighborhood is the hierarchy context of one standard term.
type TermNeighborhood struct {
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	Parents  []TermRef `json:"parents"`
	Children []TermRef `json:"children"`
	Synonyms []TermRef `json:"synonyms"`
}

const termNeighborsCypher = `MATCH (t:StandardTerm {code: $code})
OPTIONAL MATCH (t)-[:IS_SUBTERM_OF]->(p:StandardTerm)
OPTIONAL MATCH (c:StandardTerm)-[:IS_SUBTERM_OF]->(t)
OPTIONAL MATCH (t)-[:HAS_SYNONYM]->(s:Synonym)
RETURN t.code AS code, t.termName AS termName,
       collect(DISTINCT {code: p.code, name: p.termName}) AS parents,
       collect(DISTINCT {code: c.code, name: c.termName}) AS children,
       collect(DISTINCT {name: s.name}) AS synonyms`

// TermNeighbors returns the parents, children, and synonyms of a term.
func (s *Store) TermNeighbors(ctx context.Context, code string) (TermNeighborhood, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	out, err := sess.ExecuteRead(ctx, func(tx CypherRunner) (any, error) {
		res, err := tx.Run(ctx, termNeighborsCypher, map[string]any{"code": code})
		if err != nil {
			return nil, err
		}
		nb := TermNeighborhood{Code: code}
		if !res.Next(ctx) {
			return nb, res.Err()
		}
		rec := res.Record()
		if v, ok := rec.Get("code"); ok {
			if s, ok := v.(string); ok {
				nb.Code = s
			}
		}
		if v, ok := rec.Get("termName"); ok {
			if s, ok := v.(string); ok {
				nb.Name = s
			}
		}
		nb.Parents = collectRefs(rec, "parents")
		nb.Children = collectRefs(rec, "children")
		nb.Synonyms = collectRefs(rec, "synonyms")
		return nb, nil
	})
	if err != nil {
		return TermNeighborhood{}, fmt.Errorf("graph: term neighbors %s: %w: %v", code, domain.ErrGraphWrite, err)
	}
	return out.(TermNeighborhood), nil
}

// collectRefs reads a collected list of {code, name} maps, dropping empties
// produced by OPTIONAL MATCH.
func collectRefs(rec interface{ Get(string) (any, bool) }, key string) []TermRef {
	v, ok := rec.Get(key)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []TermRef
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		ref := TermRef{}
		if c, ok := m["code"].(string); ok {
			ref.Code = c
		}
		if n, ok := m["name"].(string); ok {
			ref.Name = n
		}
		if ref.Code == "" && ref.Name == "" {
			continue
		}
		out = append(out, ref)
	}
	return out
}
