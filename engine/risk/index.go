package risk

import (
	"github.com/intellidevice/engine/engine/domain"
	"github.com/intellidevice/engine/engine/graph"
)

// reportInfo is one report with everything the rules need resolved.
type reportInfo struct {
	id       string
	severity domain.Severity
	devices  []string
	injuries []string
	failures []string
}

// deviceInfo carries the device attributes used for model and manufacturer
// grouping.
type deviceInfo struct {
	name         string
	manufacturer string
	model        string
}

// snapshotIndex resolves a snapshot's edges once so each rule can iterate
// reports directly. Malformed nodes (missing id or name) are dropped here,
// per-entity, rather than failing the analysis.
type snapshotIndex struct {
	reports []reportInfo
	devices map[string]deviceInfo
}

func indexSnapshot(snap graph.Snapshot) *snapshotIndex {
	idx := &snapshotIndex{devices: make(map[string]deviceInfo)}

	nodesByID := make(map[string]graph.Node, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if n.ID == "" {
			continue
		}
		nodesByID[n.ID] = n
		if n.Label == graph.LabelDevice {
			idx.devices[n.ID] = deviceInfo{
				name:         n.Name,
				manufacturer: propString(n, "manufacturer"),
				model:        propString(n, "model"),
			}
		}
	}

	// Resolve report edges.
	byReport := make(map[string]*reportInfo)
	order := []string{}
	for _, n := range snap.Nodes {
		if n.Label != graph.LabelReport || n.ID == "" {
			continue
		}
		sev := domain.Severity(propString(n, "injury_severity"))
		if !sev.Valid() {
			sev = domain.SeverityNone
		}
		byReport[n.ID] = &reportInfo{id: n.ID, severity: sev}
		order = append(order, n.ID)
	}

	for _, e := range snap.Edges {
		r, ok := byReport[e.Source]
		if !ok {
			continue
		}
		target, ok := nodesByID[e.Target]
		if !ok || target.Name == "" {
			continue
		}
		switch e.Label {
		case graph.RelResultsIn:
			if target.Label == graph.LabelDevice {
				r.devices = append(r.devices, target.ID)
			}
		case graph.RelHasInjury:
			if target.Label == graph.LabelInjury {
				r.injuries = append(r.injuries, target.Name)
			}
		case graph.RelHasFailureMode:
			if target.Label == graph.LabelFailureMode {
				r.failures = append(r.failures, target.Name)
			}
		}
	}

	for _, id := range order {
		idx.reports = append(idx.reports, *byReport[id])
	}
	return idx
}

func propString(n graph.Node, key string) string {
	if n.Props == nil {
		return ""
	}
	if v, ok := n.Props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
