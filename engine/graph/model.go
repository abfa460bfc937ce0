package graph

// Node labels.
const (
	LabelReport       = "Report"
	LabelHospital     = "Hospital"
	LabelDevice       = "Device"
	LabelFailureMode  = "FailureMode"
	LabelInjury       = "Injury"
	LabelAction       = "Action"
	LabelDeviceIssue  = "DeviceIssue"
	LabelStandardTerm = "StandardTerm"
	LabelSynonym      = "Synonym"
)

// Relationship types.
const (
	RelReportedBy     = "REPORTED_BY"
	RelResultsIn      = "RESULTS_IN"
	RelHasFailureMode = "HAS_FAILUREMODE"
	RelHasInjury      = "HAS_INJURY"
	RelHasAction      = "HAS_ACTION"
	RelHasDeviceIssue = "HAS_DEVICEISSUE"
	RelCauses         = "CAUSES"
	RelMitigates      = "MITIGATES"
	RelHasFault       = "HAS_FAULT"
	RelMapsTo         = "MAPS_TO"
	RelIsSubtermOf    = "IS_SUBTERM_OF"
	RelHasSynonym     = "HAS_SYNONYM"
)

// Node is one graph node in a snapshot. Props carries label-specific
// attributes (severity, manufacturer, model, confidence).
type Node struct {
	ID    string         `json:"id"`
	Label string         `json:"label"`
	Name  string         `json:"name"`
	Props map[string]any `json:"props,omitempty"`
}

// Edge is one directed relationship in a snapshot.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Snapshot is a point-in-time subgraph: the unit of output for case
// inspection and the input corpus for risk analysis.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// addNode appends a node unless its id is already present.
func (s *Snapshot) addNode(n Node) {
	for _, existing := range s.Nodes {
		if existing.ID == n.ID && existing.Label == n.Label {
			return
		}
	}
	s.Nodes = append(s.Nodes, n)
}

// addEdge appends an edge unless an identical one is already present.
func (s *Snapshot) addEdge(e Edge) {
	for _, existing := range s.Edges {
		if existing == e {
			return
		}
	}
	s.Edges = append(s.Edges, e)
}

// strProp reads a string property, empty when absent or mistyped.
func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
