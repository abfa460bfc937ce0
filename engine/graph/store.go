package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/intellidevice/engine/engine/domain"
)

// Store is the graph persistence layer. Writes for the same report id are
// serialized so concurrent confirmations cannot interleave inside the upsert;
// writes for different reports proceed in parallel.
type Store struct {
	opener SessionOpener
	log    *slog.Logger

	mu    sync.Mutex
	locks map[string]*reportLock
}

// New creates a Store over a Neo4j driver.
func New(driver neo4j.DriverWithContext, log *slog.Logger) *Store {
	return NewWithOpener(driverOpener{driver: driver}, log)
}

// NewWithOpener creates a Store over any session opener, typically a fake in
// tests.
func NewWithOpener(opener SessionOpener, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{opener: opener, log: log, locks: make(map[string]*reportLock)}
}

// reportLock serializes writes for one report id. refs counts holders and
// waiters so the map entry can be evicted once the last one releases it.
type reportLock struct {
	mu   sync.Mutex
	refs int
}

// lockReport acquires the write lock for a report id.
func (s *Store) lockReport(reportID string) *reportLock {
	s.mu.Lock()
	l, ok := s.locks[reportID]
	if !ok {
		l = &reportLock{}
		s.locks[reportID] = l
	}
	l.refs++
	s.mu.Unlock()
	l.mu.Lock()
	return l
}

// unlockReport releases the lock, evicting the entry when nothing else holds
// or awaits it. The map is bounded by in-flight writes, not by the number of
// distinct report ids seen over the process lifetime.
func (s *Store) unlockReport(reportID string, l *reportLock) {
	l.mu.Unlock()
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, reportID)
	}
	s.mu.Unlock()
}

// WriteReport upserts the Hospital, Device, and Report nodes and their edges
// in one transaction. Re-running with the same report id updates properties
// in place.
func (s *Store) WriteReport(ctx context.Context, r domain.Report) error {
	l := s.lockReport(r.ID)
	defer s.unlockReport(r.ID, l)

	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	var eventDT any
	if r.EventDatetime != nil {
		eventDT = r.EventDatetime.UTC().Format(time.RFC3339)
	}

	cypher := `MERGE (h:Hospital {id: $hospital_id})
	           MERGE (d:Device {name: $device_name})
	           MERGE (r:Report {id: $report_id})
	           SET r.event_datetime = $event_datetime,
	               r.injury_severity = $injury_severity,
	               r.status = $status,
	               r.processed_at = $processed_at,
	               r.lot_sn = $lot_sn,
	               r.fingerprint = $fingerprint
	           SET d.manufacturer = $manufacturer,
	               d.model = $model
	           MERGE (r)-[:REPORTED_BY]->(h)
	           MERGE (r)-[:RESULTS_IN]->(d)`

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		return tx.Run(ctx, cypher, map[string]any{
			"hospital_id":     r.HospitalID,
			"device_name":     r.DeviceName,
			"report_id":       r.ID,
			"event_datetime":  eventDT,
			"injury_severity": string(r.Severity),
			"status":          r.Status,
			"processed_at":    r.ProcessedAt.UTC().Format(time.RFC3339),
			"lot_sn":          r.LotSN,
			"fingerprint":     r.Fingerprint,
			"manufacturer":    r.Manufacturer,
			"model":           r.Model,
		})
	})
	if err != nil {
		return fmt.Errorf("graph: write report %s: %w: %v", r.ID, domain.ErrGraphWrite, err)
	}
	s.log.DebugContext(ctx, "report written", "report_id", r.ID, "device", r.DeviceName)
	return nil
}

// structEntity is one standardized-term node to upsert for a report.
type structEntity struct {
	label string
	field domain.Field
	rel   string
}

var structEntities = []structEntity{
	{LabelFailureMode, domain.FieldFailureMode, RelHasFailureMode},
	{LabelInjury, domain.FieldHealthImpact, RelHasInjury},
	{LabelAction, domain.FieldTreatmentAction, RelHasAction},
	{LabelDeviceIssue, domain.FieldDeviceIssue, RelHasDeviceIssue},
}

// WriteStructure upserts the standardized-term entities for a confirmed
// record and links them to the report and to each other, all in one
// transaction. Entity nodes are keyed by name; the matching confidence is
// stored on the node. Injury.severity is copied from the report at write
// time and not updated retroactively.
func (s *Store) WriteStructure(ctx context.Context, reportID string, rec domain.StructuredRecord) error {
	l := s.lockReport(reportID)
	defer s.unlockReport(reportID, l)

	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		for _, ent := range structEntities {
			value := rec.Value(ent.field)
			if value == "" {
				continue
			}
			if err := s.upsertEntity(ctx, tx, reportID, ent, value, rec.FieldConfidence[ent.field]); err != nil {
				return nil, err
			}
		}

		failure := rec.Value(domain.FieldFailureMode)
		injury := rec.Value(domain.FieldHealthImpact)
		action := rec.Value(domain.FieldTreatmentAction)
		if failure != "" && injury != "" {
			if err := mergeRel(ctx, tx, LabelFailureMode, failure, LabelInjury, injury, RelCauses); err != nil {
				return nil, err
			}
		}
		if action != "" && failure != "" {
			if err := mergeRel(ctx, tx, LabelAction, action, LabelFailureMode, failure, RelMitigates); err != nil {
				return nil, err
			}
		}

		// Map vocabulary-backed entities to their standard terms.
		for _, mt := range rec.MatchedTerms {
			if mt.Code == "" {
				continue
			}
			label := entityLabel(mt.Field)
			if label == "" {
				continue
			}
			cypher := `MATCH (n:` + label + ` {name: $term})
			           MATCH (t:StandardTerm {code: $code})
			           MERGE (n)-[:MAPS_TO]->(t)`
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"term": rec.Value(mt.Field), "code": mt.Code,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graph: write structure %s: %w: %v", reportID, domain.ErrGraphWrite, err)
	}
	s.log.DebugContext(ctx, "structure written", "report_id", reportID)
	return nil
}

// upsertEntity merges one entity node and its edge from the report. Injury
// copies the report severity; DeviceIssue additionally links from the Device.
func (s *Store) upsertEntity(ctx context.Context, tx CypherRunner, reportID string, ent structEntity, value string, confidence float64) error {
	cypher := `MERGE (n:` + ent.label + ` {name: $name}) SET n.confidence = $confidence`
	if _, err := tx.Run(ctx, cypher, map[string]any{"name": value, "confidence": confidence}); err != nil {
		return err
	}

	switch ent.label {
	case LabelInjury:
		cypher = `MATCH (r:Report {id: $rid})
		          MATCH (n:Injury {name: $name})
		          MERGE (r)-[:HAS_INJURY]->(n)
		          SET n.severity = r.injury_severity`
	case LabelDeviceIssue:
		cypher = `MATCH (r:Report {id: $rid})-[:RESULTS_IN]->(d:Device)
		          MATCH (n:DeviceIssue {name: $name})
		          MERGE (d)-[:HAS_FAULT]->(n)
		          MERGE (r)-[:HAS_DEVICEISSUE]->(n)`
	default:
		cypher = `MATCH (r:Report {id: $rid})
		          MATCH (n:` + ent.label + ` {name: $name})
		          MERGE (r)-[:` + ent.rel + `]->(n)`
	}
	_, err := tx.Run(ctx, cypher, map[string]any{"rid": reportID, "name": value})
	return err
}

// mergeRel merges a relationship between two name-keyed entity nodes.
func mergeRel(ctx context.Context, tx CypherRunner, l1, n1, l2, n2, rel string) error {
	cypher := `MERGE (a:` + l1 + ` {name: $n1})
	           MERGE (b:` + l2 + ` {name: $n2})
	           MERGE (a)-[:` + rel + `]->(b)`
	_, err := tx.Run(ctx, cypher, map[string]any{"n1": n1, "n2": n2})
	return err
}

// entityLabel maps a structured field to its graph label.
func entityLabel(f domain.Field) string {
	switch f {
	case domain.FieldFailureMode:
		return LabelFailureMode
	case domain.FieldHealthImpact:
		return LabelInjury
	case domain.FieldTreatmentAction:
		return LabelAction
	case domain.FieldDeviceIssue:
		return LabelDeviceIssue
	}
	return ""
}

// HasFingerprint reports whether a report with the given dedup fingerprint
// already exists.
func (s *Store) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	found, err := sess.ExecuteRead(ctx, func(tx CypherRunner) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (r:Report {fingerprint: $fp}) RETURN count(r) AS c",
			map[string]any{"fp": fingerprint})
		if err != nil {
			return nil, err
		}
		var count int64
		if res.Next(ctx) {
			if v, ok := res.Record().Get("c"); ok {
				count, _ = v.(int64)
			}
		}
		return count > 0, res.Err()
	})
	if err != nil {
		return false, fmt.Errorf("graph: fingerprint lookup: %w: %v", domain.ErrGraphWrite, err)
	}
	exists, _ := found.(bool)
	return exists, nil
}

// SetStatus updates the status of an existing report.
func (s *Store) SetStatus(ctx context.Context, reportID, status string) error {
	l := s.lockReport(reportID)
	defer s.unlockReport(reportID, l)

	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (r:Report {id: $id}) SET r.status = $status RETURN count(r) AS c",
			map[string]any{"id": reportID, "status": status})
		if err != nil {
			return nil, err
		}
		var count int64
		if res.Next(ctx) {
			if v, ok := res.Record().Get("c"); ok {
				count, _ = v.(int64)
			}
		}
		if count == 0 {
			return nil, domain.ErrReportNotFound
		}
		return nil, res.Err()
	})
	if err != nil {
		if errors.Is(err, domain.ErrReportNotFound) {
			return fmt.Errorf("graph: set status %s: %w", reportID, domain.ErrReportNotFound)
		}
		return fmt.Errorf("graph: set status %s: %w: %v", reportID, domain.ErrGraphWrite, err)
	}
	return nil
}

// Ping checks connectivity with a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)
	if _, err := sess.Run(ctx, "RETURN 1", nil); err != nil {
		return fmt.Errorf("graph: ping: %w: %v", domain.ErrGraphWrite, err)
	}
	return nil
}

// ClearAll deletes every node and relationship. Administrative reset only.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	deleted, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		res, err := tx.Run(ctx, "MATCH (n) RETURN count(n) AS c", nil)
		if err != nil {
			return nil, err
		}
		var count int64
		if res.Next(ctx) {
			if v, ok := res.Record().Get("c"); ok {
				count, _ = v.(int64)
			}
		}
		if _, err := tx.Run(ctx, "MATCH (n) DETACH DELETE n", nil); err != nil {
			return nil, err
		}
		return count, nil
	})
	if err != nil {
		return 0, fmt.Errorf("graph: clear: %w: %v", domain.ErrGraphWrite, err)
	}
	n, _ := deleted.(int64)
	s.log.InfoContext(ctx, "graph cleared", "deleted", n)
	return n, nil
}
