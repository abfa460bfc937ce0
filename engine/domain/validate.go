package domain

import "strings"

// ValidateReportIn checks an incoming submission before it enters the
// pipeline. An empty severity defaults to none at intake; anything else
// outside the enum is rejected.
func ValidateReportIn(in ReportIn) error {
	if strings.TrimSpace(in.HospitalID) == "" {
		return NewValidationError("hospital_id", in.HospitalID, ErrMissingField)
	}
	if strings.TrimSpace(in.DeviceName) == "" {
		return NewValidationError("device_name", in.DeviceName, ErrMissingField)
	}
	if strings.TrimSpace(in.Description) == "" {
		return NewValidationError("event_description", in.Description, ErrMissingField)
	}
	if in.Severity != "" && !in.Severity.Valid() {
		return NewValidationError("injury_severity", string(in.Severity), ErrBadSeverity)
	}
	return nil
}
