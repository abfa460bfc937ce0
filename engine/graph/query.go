package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/intellidevice/engine/engine/domain"
)

// caseGraphCypher pulls the one-hop-plus neighborhood of a report: source
// hospital, device with its faults, and every structured-field entity with
// the inter-entity edges.
const caseGraphCypher = `MATCH (r:Report {id: $rid})
OPTIONAL MATCH (r)-[:REPORTED_BY]->(h:Hospital)
OPTIONAL MATCH (r)-[:RESULTS_IN]->(d:Device)
OPTIONAL MATCH (r)-[:HAS_FAILUREMODE]->(fm:FailureMode)
OPTIONAL MATCH (r)-[:HAS_INJURY]->(inj:Injury)
OPTIONAL MATCH (r)-[:HAS_ACTION]->(act:Action)
OPTIONAL MATCH (r)-[:HAS_DEVICEISSUE]->(di:DeviceIssue)
OPTIONAL MATCH (fm)-[:MAPS_TO]->(stFM:StandardTerm)
OPTIONAL MATCH (inj)-[:MAPS_TO]->(stINJ:StandardTerm)
RETURN r, h, d, fm, inj, act, di, stFM, stINJ`

// recentGraphCypher pulls the union neighborhood of the N most recently
// processed reports, the default corpus for risk analysis.
const recentGraphCypher = `MATCH (r:Report)
WITH r ORDER BY r.processed_at DESC LIMIT $limit
OPTIONAL MATCH (r)-[:REPORTED_BY]->(h:Hospital)
OPTIONAL MATCH (r)-[:RESULTS_IN]->(d:Device)
OPTIONAL MATCH (r)-[:HAS_FAILUREMODE]->(fm:FailureMode)
OPTIONAL MATCH (r)-[:HAS_INJURY]->(inj:Injury)
OPTIONAL MATCH (r)-[:HAS_ACTION]->(act:Action)
OPTIONAL MATCH (r)-[:HAS_DEVICEISSUE]->(di:DeviceIssue)
RETURN r, h, d, fm, inj, act, di`

// CaseGraph returns the full subgraph around one report.
func (s *Store) CaseGraph(ctx context.Context, reportID string) (Snapshot, error) {
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	out, err := sess.ExecuteRead(ctx, func(tx CypherRunner) (any, error) {
		res, err := tx.Run(ctx, caseGraphCypher, map[string]any{"rid": reportID})
		if err != nil {
			return nil, err
		}
		return collectSnapshot(ctx, res)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("graph: case graph %s: %w: %v", reportID, domain.ErrGraphWrite, err)
	}
	return out.(Snapshot), nil
}

// RecentGraph returns the union subgraph over the limit most recent reports.
func (s *Store) RecentGraph(ctx context.Context, limit int) (Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	sess := s.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	out, err := sess.ExecuteRead(ctx, func(tx CypherRunner) (any, error) {
		res, err := tx.Run(ctx, recentGraphCypher, map[string]any{"limit": limit})
		if err != nil {
			return nil, err
		}
		return collectSnapshot(ctx, res)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("graph: recent graph: %w: %v", domain.ErrGraphWrite, err)
	}
	return out.(Snapshot), nil
}

// collectSnapshot folds query rows into a deduplicated snapshot. Each row is
// one combination of the optional matches around a report.
func collectSnapshot(ctx context.Context, res CypherResult) (Snapshot, error) {
	var snap Snapshot
	for res.Next(ctx) {
		rec := res.Record()

		report, ok := recordNode(rec, "r")
		if !ok {
			continue
		}
		rid := strProp(report.Props, "id")
		snap.addNode(Node{ID: rid, Label: LabelReport, Name: rid, Props: map[string]any{
			"event_datetime":  report.Props["event_datetime"],
			"injury_severity": report.Props["injury_severity"],
			"status":          report.Props["status"],
		}})

		if h, ok := recordNode(rec, "h"); ok {
			hid := strProp(h.Props, "id")
			snap.addNode(Node{ID: hid, Label: LabelHospital, Name: hid})
			snap.addEdge(Edge{Source: rid, Target: hid, Label: RelReportedBy})
		}

		deviceName := ""
		if d, ok := recordNode(rec, "d"); ok {
			deviceName = strProp(d.Props, "name")
			snap.addNode(Node{ID: deviceName, Label: LabelDevice, Name: deviceName, Props: map[string]any{
				"manufacturer": d.Props["manufacturer"],
				"model":        d.Props["model"],
			}})
			snap.addEdge(Edge{Source: rid, Target: deviceName, Label: RelResultsIn})
		}

		fmName := addEntityRow(&snap, rec, "fm", LabelFailureMode, rid, RelHasFailureMode)
		injName := addEntityRow(&snap, rec, "inj", LabelInjury, rid, RelHasInjury)
		addEntityRow(&snap, rec, "act", LabelAction, rid, RelHasAction)
		diName := addEntityRow(&snap, rec, "di", LabelDeviceIssue, rid, RelHasDeviceIssue)

		if fmName != "" && injName != "" {
			snap.addEdge(Edge{Source: fmName, Target: injName, Label: RelCauses})
		}
		if diName != "" && deviceName != "" {
			snap.addEdge(Edge{Source: deviceName, Target: diName, Label: RelHasFault})
		}

		addStandardTermRow(&snap, rec, "stFM", fmName)
		addStandardTermRow(&snap, rec, "stINJ", injName)
	}
	return snap, res.Err()
}

// addEntityRow adds one name-keyed entity node plus its edge from the report
// and returns the entity name, empty when the column is null.
func addEntityRow(snap *Snapshot, rec *db.Record, key, label, reportID, rel string) string {
	n, ok := recordNode(rec, key)
	if !ok {
		return ""
	}
	name := strProp(n.Props, "name")
	if name == "" {
		return ""
	}
	props := map[string]any{}
	if v, ok := n.Props["confidence"]; ok {
		props["confidence"] = v
	}
	if v, ok := n.Props["severity"]; ok {
		props["severity"] = v
	}
	snap.addNode(Node{ID: name, Label: label, Name: name, Props: props})
	snap.addEdge(Edge{Source: reportID, Target: name, Label: rel})
	return name
}

// addStandardTermRow adds a StandardTerm node and its MAPS_TO edge from the
// given entity, when both are present.
func addStandardTermRow(snap *Snapshot, rec *db.Record, key, fromName string) {
	if fromName == "" {
		return
	}
	n, ok := recordNode(rec, key)
	if !ok {
		return
	}
	code := strProp(n.Props, "code")
	if code == "" {
		return
	}
	name := strProp(n.Props, "termName")
	if name == "" {
		name = code
	}
	snap.addNode(Node{ID: code, Label: LabelStandardTerm, Name: name, Props: map[string]any{
		"code":     code,
		"category": n.Props["category"],
	}})
	snap.addEdge(Edge{Source: fromName, Target: code, Label: RelMapsTo})
}

// recordNode reads a node column, false when null or mistyped.
func recordNode(rec *db.Record, key string) (dbtype.Node, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return dbtype.Node{}, false
	}
	n, ok := v.(dbtype.Node)
	return n, ok
}
