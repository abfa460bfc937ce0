// Package risk mines a graph snapshot for recurring adverse-event patterns.
// Five independent rules run over the same snapshot; each emits zero or more
// scored, evidenced signals. Analysis is advisory: it never locks the graph
// and tolerates a stale snapshot.
package risk

// RuleType identifies which detection rule produced a signal.
type RuleType string

const (
	RuleSevereCluster    RuleType = "high_severity_cluster"
	RuleFrequentFailure  RuleType = "frequent_failure_mode"
	RuleDeviceModel      RuleType = "device_model_risk"
	RuleManufacturer     RuleType = "manufacturer_risk"
	RuleDeviceInjury     RuleType = "device_injury_association"
)

// rulePriority orders rule types for deterministic tie-breaking.
var rulePriority = map[RuleType]int{
	RuleSevereCluster:   1,
	RuleFrequentFailure: 2,
	RuleDeviceModel:     3,
	RuleManufacturer:    4,
	RuleDeviceInjury:    5,
}

// Level discretizes a risk score.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Score breakpoints for level discretization.
const (
	HighBreakpoint   = 0.7
	MediumBreakpoint = 0.4
)

// levelFor maps a score to its level.
func levelFor(score float64) Level {
	switch {
	case score >= HighBreakpoint:
		return LevelHigh
	case score >= MediumBreakpoint:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Rule trigger thresholds and score scaling.
const (
	SevereClusterMinReports = 2
	SevereClusterScoreStep  = 0.4

	FrequentFailureMinReports = 3
	FrequentFailureScoreStep  = 0.25

	DeviceModelMinScore = 0.2

	ManufacturerMinEvents = 3

	AssociationMinCount    = 2
	AssociationMinStrength = 0.5
)

// Evidence is the machine-checkable support behind a signal.
type Evidence struct {
	ReportIDs []string `json:"report_ids,omitempty"`
	NodeIDs   []string `json:"node_ids,omitempty"`
	Count     int      `json:"count"`
}

// Signal is one scored risk claim.
type Signal struct {
	Type           RuleType `json:"risk_type"`
	EntityKey      string   `json:"entity_key"`
	Description    string   `json:"description"`
	Score          float64  `json:"risk_score"`
	Level          Level    `json:"risk_level"`
	Evidence       Evidence `json:"evidence"`
	Recommendation string   `json:"recommendation"`
}

// Summary aggregates one analysis run.
type Summary struct {
	Total   int      `json:"total_risks"`
	High    int      `json:"high_risks"`
	Medium  int      `json:"medium_risks"`
	Low     int      `json:"low_risks"`
	Signals []Signal `json:"risk_details"`
}
