// Package graph persists structured adverse-event records as a property
// graph and answers the subgraph queries that feed risk analysis. All writes
// go through Cypher MERGE so re-running them is idempotent.
package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
)

// CypherResult iterates records from a query.
type CypherResult interface {
	Next(ctx context.Context) bool
	Record() *db.Record
	Err() error
}

// CypherRunner executes a single Cypher statement.
type CypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error)
}

// CypherSession is one unit of graph work: ad-hoc statements plus managed
// read/write transactions.
type CypherSession interface {
	CypherRunner
	ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error)
	ExecuteRead(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error)
	Close(ctx context.Context) error
}

// SessionOpener abstracts the driver so stores can be exercised against
// in-memory fakes.
type SessionOpener interface {
	OpenSession(ctx context.Context) CypherSession
}

// driverOpener adapts a Neo4j driver to SessionOpener.
type driverOpener struct {
	driver neo4j.DriverWithContext
}

func (o driverOpener) OpenSession(ctx context.Context) CypherSession {
	return neoSession{s: o.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

type neoSession struct {
	s neo4j.SessionWithContext
}

func (s neoSession) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	res, err := s.s.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return neoResult{r: res}, nil
}

func (s neoSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return s.s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(neoTx{tx: tx})
	})
}

func (s neoSession) ExecuteRead(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return s.s.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(neoTx{tx: tx})
	})
}

func (s neoSession) Close(ctx context.Context) error { return s.s.Close(ctx) }

type neoTx struct {
	tx neo4j.ManagedTransaction
}

func (t neoTx) Run(ctx context.Context, cypher string, params map[string]any) (CypherResult, error) {
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return neoResult{r: res}, nil
}

type neoResult struct {
	r neo4j.ResultWithContext
}

func (r neoResult) Next(ctx context.Context) bool { return r.r.Next(ctx) }
func (r neoResult) Record() *db.Record            { return r.r.Record() }
func (r neoResult) Err() error                    { return r.r.Err() }
