package graph

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

func caseRecord(keys []string, values []any) *db.Record {
	return &db.Record{Keys: keys, Values: values}
}

func node(props map[string]any) dbtype.Node {
	return dbtype.Node{Props: props}
}

func TestCollectSnapshot(t *testing.T) {
	keys := []string{"r", "h", "d", "fm", "inj", "act", "di", "stFM", "stINJ"}
	rec := caseRecord(keys, []any{
		node(map[string]any{"id": "r-001", "injury_severity": "severe", "status": "confirmed"}),
		node(map[string]any{"id": "H-001"}),
		node(map[string]any{"name": "心电监护仪", "manufacturer": "厂商甲", "model": "MX-550"}),
		node(map[string]any{"name": "显示故障", "confidence": 0.92}),
		node(map[string]any{"name": "重度伤害", "severity": "severe"}),
		node(map[string]any{"name": "更换设备"}),
		node(map[string]any{"name": "黑屏"}),
		node(map[string]any{"code": "A01", "termName": "显示故障", "category": "A"}),
		nil,
	})

	snap, err := collectSnapshot(context.Background(), newMockResult(rec))
	if err != nil {
		t.Fatalf("collectSnapshot: %v", err)
	}

	labels := map[string]int{}
	for _, n := range snap.Nodes {
		labels[n.Label]++
	}
	for _, want := range []string{
		LabelReport, LabelHospital, LabelDevice, LabelFailureMode,
		LabelInjury, LabelAction, LabelDeviceIssue, LabelStandardTerm,
	} {
		if labels[want] != 1 {
			t.Errorf("label %s: %d nodes, want 1", want, labels[want])
		}
	}

	edgeSet := map[Edge]bool{}
	for _, e := range snap.Edges {
		edgeSet[e] = true
	}
	for _, want := range []Edge{
		{Source: "r-001", Target: "H-001", Label: RelReportedBy},
		{Source: "r-001", Target: "心电监护仪", Label: RelResultsIn},
		{Source: "r-001", Target: "显示故障", Label: RelHasFailureMode},
		{Source: "r-001", Target: "重度伤害", Label: RelHasInjury},
		{Source: "显示故障", Target: "重度伤害", Label: RelCauses},
		{Source: "心电监护仪", Target: "黑屏", Label: RelHasFault},
		{Source: "显示故障", Target: "A01", Label: RelMapsTo},
	} {
		if !edgeSet[want] {
			t.Errorf("missing edge %+v", want)
		}
	}
}

func TestCollectSnapshotDeduplicates(t *testing.T) {
	keys := []string{"r", "h", "d", "fm", "inj", "act", "di"}
	row := func() *db.Record {
		return caseRecord(keys, []any{
			node(map[string]any{"id": "r-001", "injury_severity": "mild"}),
			node(map[string]any{"id": "H-001"}),
			node(map[string]any{"name": "输液泵"}),
			nil, nil, nil, nil,
		})
	}

	snap, err := collectSnapshot(context.Background(), newMockResult(row(), row()))
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Nodes) != 3 {
		t.Errorf("nodes = %d, want 3 after dedup", len(snap.Nodes))
	}
	if len(snap.Edges) != 2 {
		t.Errorf("edges = %d, want 2 after dedup", len(snap.Edges))
	}
}

func TestCollectSnapshotSkipsMalformedRows(t *testing.T) {
	keys := []string{"r", "h", "d", "fm", "inj", "act", "di"}
	bad := caseRecord(keys, []any{nil, nil, nil, nil, nil, nil, nil})
	good := caseRecord(keys, []any{
		node(map[string]any{"id": "r-002"}),
		nil, nil, nil, nil, nil, nil,
	})

	snap, err := collectSnapshot(context.Background(), newMockResult(bad, good))
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Nodes) != 1 || snap.Nodes[0].ID != "r-002" {
		t.Errorf("snapshot = %+v, want only r-002", snap.Nodes)
	}
}

func TestRecentGraphLimitParam(t *testing.T) {
	store, tx := newTrackingStore()
	if _, err := store.RecentGraph(context.Background(), 25); err != nil {
		t.Fatal(err)
	}
	if len(tx.params) == 0 || tx.params[0]["limit"] != 25 {
		t.Errorf("limit param = %v, want 25", tx.params)
	}

	tx.queries = nil
	tx.params = nil
	if _, err := store.RecentGraph(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if tx.params[0]["limit"] != 100 {
		t.Errorf("default limit = %v, want 100", tx.params[0]["limit"])
	}
}
