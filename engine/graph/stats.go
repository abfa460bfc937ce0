package graph

import (
	"context"
	"fmt"

	"github.com/intellidevice/engine/engine/domain"
)

// Stats summarizes graph contents by label and relationship type.
type Stats struct {
	Nodes         map[string]int64 `json:"nodes"`
	Relationships map[string]int64 `json:"relationships"`
}

// Stats counts nodes per label and relationships per type.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	out, err := sess.ExecuteRead(ctx, func(tx CypherRunner) (any, error) {
		stats := Stats{
			Nodes:         make(map[string]int64),
			Relationships: make(map[string]int64),
		}

		res, err := tx.Run(ctx, `MATCH (n) RETURN labels(n)[0] AS label, count(n) AS c`, nil)
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			rec := res.Record()
			label, _ := rec.Get("label")
			c, _ := rec.Get("c")
			if l, ok := label.(string); ok {
				if n, ok := c.(int64); ok {
					stats.Nodes[l] = n
				}
			}
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		res, err = tx.Run(ctx, `MATCH ()-[r]->() RETURN type(r) AS t, count(r) AS c`, nil)
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			rec := res.Record()
			typ, _ := rec.Get("t")
			c, _ := rec.Get("c")
			if t, ok := typ.(string); ok {
				if n, ok := c.(int64); ok {
					stats.Relationships[t] = n
				}
			}
		}
		return stats, res.Err()
	})
	if err != nil {
		return Stats{}, fmt.Errorf("graph: stats: %w: %v", domain.ErrGraphWrite, err)
	}
	return out.(Stats), nil
}
