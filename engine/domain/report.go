// Package domain defines the core types, constants, and validation for the
// adverse-event analytics engine. It acts as the validation gate at pipeline
// entry points.
package domain

import "time"

// Severity is the injury severity of an adverse event.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityDeath    Severity = "death"
)

// ValidSeverities is the closed set of severity values.
var ValidSeverities = map[Severity]bool{
	SeverityNone: true, SeverityMild: true, SeverityModerate: true,
	SeveritySevere: true, SeverityDeath: true,
}

// Valid reports whether s is one of the five severity values.
func (s Severity) Valid() bool { return ValidSeverities[s] }

// Weight returns the risk weight of a severity level.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityDeath:
		return 1.0
	case SeveritySevere:
		return 0.7
	case SeverityModerate:
		return 0.4
	case SeverityMild:
		return 0.1
	default:
		return 0
	}
}

// Report statuses.
const (
	StatusReceived  = "received"
	StatusDuplicate = "duplicate"
	StatusConfirmed = "confirmed"
	StatusInReview  = "in_review"
	StatusPending   = "pending"
)

// ReportIn is an incoming adverse-event submission, before scrubbing.
type ReportIn struct {
	HospitalID    string     `json:"hospital_id"`
	DeviceName    string     `json:"device_name"`
	Manufacturer  string     `json:"manufacturer,omitempty"`
	Model         string     `json:"model,omitempty"`
	LotSN         string     `json:"lot_sn,omitempty"`
	EventDatetime *time.Time `json:"event_datetime,omitempty"`
	Description   string     `json:"event_description"`
	Severity      Severity   `json:"injury_severity,omitempty"`
	ActionTaken   string     `json:"action_taken,omitempty"`
	Attachments   []string   `json:"attachments,omitempty"`

	// PII, dropped by Scrubbed before anything is persisted.
	PatientName       string `json:"patient_name,omitempty"`
	PatientPhone      string `json:"patient_phone,omitempty"`
	PatientIdentifier string `json:"patient_identifier,omitempty"`
	ClinicianName     string `json:"clinician_name,omitempty"`
}

// Scrubbed returns a copy of the submission with all PII fields cleared.
func (in ReportIn) Scrubbed() ReportIn {
	out := in
	out.PatientName = ""
	out.PatientPhone = ""
	out.PatientIdentifier = ""
	out.ClinicianName = ""
	return out
}

// Report is a processed adverse-event report as persisted in the graph.
type Report struct {
	ID            string     `json:"report_id"`
	HospitalID    string     `json:"hospital_id"`
	DeviceName    string     `json:"device_name"`
	Manufacturer  string     `json:"manufacturer,omitempty"`
	Model         string     `json:"model,omitempty"`
	LotSN         string     `json:"lot_sn,omitempty"`
	EventDatetime *time.Time `json:"event_datetime,omitempty"`
	Description   string     `json:"event_description"`
	Severity      Severity   `json:"injury_severity"`
	ActionTaken   string     `json:"action_taken,omitempty"`
	ProcessedAt   time.Time  `json:"processed_at"`
	Status        string     `json:"status"`
	Fingerprint   string     `json:"fingerprint,omitempty"`
}

// Field names the extracted fields of a structured record. The schema is
// closed: only these five fields exist.
type Field string

const (
	FieldDeviceIssue           Field = "device_issue"
	FieldFailureMode           Field = "failure_mode"
	FieldClinicalManifestation Field = "clinical_manifestation"
	FieldHealthImpact          Field = "health_impact"
	FieldTreatmentAction       Field = "treatment_action"
)

// Fields lists every structured field in canonical order.
var Fields = []Field{
	FieldDeviceIssue,
	FieldFailureMode,
	FieldClinicalManifestation,
	FieldHealthImpact,
	FieldTreatmentAction,
}

// fieldAliases maps legacy payload keys onto the closed schema. Resolution
// happens at the boundary only; internal code works with Field values.
var fieldAliases = map[string]Field{
	"device_issue":           FieldDeviceIssue,
	"deviceissue":            FieldDeviceIssue,
	"failure":                FieldFailureMode,
	"failuremode":            FieldFailureMode,
	"failure_mode":           FieldFailureMode,
	"clinical_manifestation": FieldClinicalManifestation,
	"symptom":                FieldClinicalManifestation,
	"health_impact":          FieldHealthImpact,
	"injury":                 FieldHealthImpact,
	"treatment_action":       FieldTreatmentAction,
	"action":                 FieldTreatmentAction,
}

// CanonicalField resolves a payload key (including legacy aliases) to a Field.
func CanonicalField(name string) (Field, bool) {
	f, ok := fieldAliases[normalizeKey(name)]
	return f, ok
}

// MatchedTerm records a vocabulary match that produced a structured field.
type MatchedTerm struct {
	Field      Field   `json:"field"`
	Category   string  `json:"category"`
	Code       string  `json:"code,omitempty"`
	Term       string  `json:"term"`
	Similarity float64 `json:"similarity"`
}

// StructuredRecord is the output of structure analysis: the five typed
// fields, the vocabulary matches behind them, and a confidence score.
type StructuredRecord struct {
	DeviceIssue           string `json:"device_issue"`
	FailureMode           string `json:"failure_mode"`
	ClinicalManifestation string `json:"clinical_manifestation"`
	HealthImpact          string `json:"health_impact"`
	TreatmentAction       string `json:"treatment_action"`

	MatchedTerms    []MatchedTerm     `json:"matched_terms"`
	Confidence      float64           `json:"confidence"`
	FieldConfidence map[Field]float64 `json:"confidence_breakdown"`
}

// Value returns the extracted value for a field.
func (r StructuredRecord) Value(f Field) string {
	switch f {
	case FieldDeviceIssue:
		return r.DeviceIssue
	case FieldFailureMode:
		return r.FailureMode
	case FieldClinicalManifestation:
		return r.ClinicalManifestation
	case FieldHealthImpact:
		return r.HealthImpact
	case FieldTreatmentAction:
		return r.TreatmentAction
	}
	return ""
}

// SetValue assigns the extracted value for a field.
func (r *StructuredRecord) SetValue(f Field, v string) {
	switch f {
	case FieldDeviceIssue:
		r.DeviceIssue = v
	case FieldFailureMode:
		r.FailureMode = v
	case FieldClinicalManifestation:
		r.ClinicalManifestation = v
	case FieldHealthImpact:
		r.HealthImpact = v
	case FieldTreatmentAction:
		r.TreatmentAction = v
	}
}
