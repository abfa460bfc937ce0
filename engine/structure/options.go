// Package structure converts free-text adverse-event narratives into
// structured records: five typed fields, the vocabulary matches behind them,
// and a confidence score. Extraction is deterministic and makes no external
// calls; the LLM fallback is a capability interface invoked by the caller.
package structure

// Extraction tuning. Matched vocabulary terms contribute their similarity to
// field confidence; keyword- or verbatim-derived values contribute the mid
// level; fallback labels contribute the floor.
const (
	FieldThreshold  = 0.2
	FieldTopK       = 3
	ConfidenceFloor = 0.2
	ConfidenceMid   = 0.6
)

// Vocabulary categories consulted per field.
const (
	CategoryFailureMode   = "A"
	CategoryManifestation = "E"
	CategoryHealthImpact  = "F"
)

// FallbackLabels is the per-field default taxonomy assigned when nothing
// clears a threshold. These are domain configuration, not logic; override
// them only in agreement with the vocabulary owners.
type FallbackLabels struct {
	UnknownFailureMode        string
	DisplayFault              string
	AlarmFault                string
	MeasurementFault          string
	UnclassifiedManifestation string
	UnclassifiedImpact        string
	UnclassifiedAction        string
	// DeviceMalfunction is appended to the device hint when no issue
	// keyword matches, e.g. "心电监护仪" + "功能异常".
	DeviceMalfunction string
}

// DefaultFallbacks returns the standard fallback taxonomy.
func DefaultFallbacks() FallbackLabels {
	return FallbackLabels{
		UnknownFailureMode:        "未知故障模式",
		DisplayFault:              "显示故障",
		AlarmFault:                "报警系统故障",
		MeasurementFault:          "测量精度故障",
		UnclassifiedManifestation: "临床表现未明确",
		UnclassifiedImpact:        "健康影响未明确",
		UnclassifiedAction:        "处置措施未明确",
		DeviceMalfunction:         "功能异常",
	}
}

// Options configures an Analyzer.
type Options struct {
	Threshold float64
	TopK      int
	Fallbacks FallbackLabels
}

// DefaultOptions returns the standard extraction configuration.
func DefaultOptions() Options {
	return Options{
		Threshold: FieldThreshold,
		TopK:      FieldTopK,
		Fallbacks: DefaultFallbacks(),
	}
}
