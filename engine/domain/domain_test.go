package domain

import (
	"errors"
	"testing"
	"time"
)

func TestSeverityWeight(t *testing.T) {
	cases := []struct {
		sev  Severity
		want float64
	}{
		{SeverityDeath, 1.0},
		{SeveritySevere, 0.7},
		{SeverityModerate, 0.4},
		{SeverityMild, 0.1},
		{SeverityNone, 0},
		{Severity("bogus"), 0},
	}
	for _, tc := range cases {
		if got := tc.sev.Weight(); got != tc.want {
			t.Errorf("Weight(%q) = %v, want %v", tc.sev, got, tc.want)
		}
	}
}

func TestClassifySeverity(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Severity
	}{
		{"death keyword", "患者抢救无效死亡", SeverityDeath},
		{"severe keyword", "患者出现休克症状", SeveritySevere},
		{"moderate keyword", "患者住院观察三天", SeverityModerate},
		{"mild keyword", "皮肤红肿，短暂不适", SeverityMild},
		{"explicit none", "设备故障但未造成伤害", SeverityNone},
		{"death beats mild", "轻微不适后病情恶化，最终死亡", SeverityDeath},
		{"secondary severe hint", "出现呼吸衰竭迹象", SeveritySevere},
		{"no signal", "设备屏幕出现闪烁", SeverityNone},
		{"empty", "", SeverityNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySeverity(tc.text); got != tc.want {
				t.Errorf("ClassifySeverity(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestClassifySeverityEvidence(t *testing.T) {
	sev, evidence := ClassifySeverityEvidence("患者昏迷并住院治疗")
	if sev != SeveritySevere {
		t.Fatalf("severity = %q, want severe", sev)
	}
	if len(evidence) < 2 {
		t.Fatalf("evidence = %v, want hits for both 昏迷 and 住院", evidence)
	}
	seen := map[string]Severity{}
	for _, e := range evidence {
		seen[e.Keyword] = e.Level
	}
	if seen["昏迷"] != SeveritySevere {
		t.Errorf("missing severe evidence for 昏迷: %v", evidence)
	}
	if seen["住院"] != SeverityModerate {
		t.Errorf("missing moderate evidence for 住院: %v", evidence)
	}
}

func TestFingerprintStable(t *testing.T) {
	dt := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	a := ReportIn{
		HospitalID:    "H-001",
		DeviceName:    "心电监护仪",
		Model:         "MX-550",
		LotSN:         "SN12345",
		EventDatetime: &dt,
		Description:   "设备黑屏",
	}
	b := a
	b.HospitalID = "  h-001 "
	b.Model = "mx-550"
	b.Description = "completely different narrative"

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("fingerprints differ across whitespace/case noise")
	}

	c := a
	c.LotSN = "SN99999"
	if Fingerprint(a) == Fingerprint(c) {
		t.Error("fingerprint ignored lot_sn change")
	}

	d := a
	other := dt.Add(time.Hour)
	d.EventDatetime = &other
	if Fingerprint(a) == Fingerprint(d) {
		t.Error("fingerprint ignored event_datetime change")
	}
}

func TestFingerprintTimezoneNormalized(t *testing.T) {
	utc := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	cst := utc.In(time.FixedZone("CST", 8*3600))
	a := ReportIn{HospitalID: "H-001", DeviceName: "泵", EventDatetime: &utc}
	b := ReportIn{HospitalID: "H-001", DeviceName: "泵", EventDatetime: &cst}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("fingerprint differs for same instant in different zones")
	}
}

func TestValidateReportIn(t *testing.T) {
	ok := ReportIn{HospitalID: "H-001", DeviceName: "输液泵", Description: "报警失灵"}
	if err := ValidateReportIn(ok); err != nil {
		t.Fatalf("valid submission rejected: %v", err)
	}

	cases := []struct {
		name     string
		mutate   func(*ReportIn)
		sentinel error
	}{
		{"missing hospital", func(r *ReportIn) { r.HospitalID = "  " }, ErrMissingField},
		{"missing device", func(r *ReportIn) { r.DeviceName = "" }, ErrMissingField},
		{"missing description", func(r *ReportIn) { r.Description = "" }, ErrMissingField},
		{"bad severity", func(r *ReportIn) { r.Severity = "catastrophic" }, ErrBadSeverity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := ok
			tc.mutate(&in)
			err := ValidateReportIn(in)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, tc.sentinel) {
				t.Errorf("error = %v, want wrapping %v", err, tc.sentinel)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("error %T does not unwrap to ValidationError", err)
			}
		})
	}
}

func TestScrubbedDropsPII(t *testing.T) {
	in := ReportIn{
		HospitalID:        "H-001",
		DeviceName:        "呼吸机",
		Description:       "通气异常",
		PatientName:       "张三",
		PatientPhone:      "13800000000",
		PatientIdentifier: "110101199001011234",
		ClinicianName:     "李医生",
	}
	out := in.Scrubbed()
	if out.PatientName != "" || out.PatientPhone != "" ||
		out.PatientIdentifier != "" || out.ClinicianName != "" {
		t.Errorf("PII survived scrub: %+v", out)
	}
	if out.HospitalID != in.HospitalID || out.Description != in.Description {
		t.Error("scrub altered non-PII fields")
	}
	if in.PatientName == "" {
		t.Error("scrub mutated the original")
	}
}

func TestCanonicalField(t *testing.T) {
	cases := []struct {
		in   string
		want Field
		ok   bool
	}{
		{"device_issue", FieldDeviceIssue, true},
		{"Failure", FieldFailureMode, true},
		{" SYMPTOM ", FieldClinicalManifestation, true},
		{"injury", FieldHealthImpact, true},
		{"action", FieldTreatmentAction, true},
		{"unknown_field", "", false},
	}
	for _, tc := range cases {
		got, ok := CanonicalField(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("CanonicalField(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestStructuredRecordValueRoundTrip(t *testing.T) {
	var rec StructuredRecord
	for i, f := range Fields {
		rec.SetValue(f, string(f)+"-value")
		if got := rec.Value(f); got != string(f)+"-value" {
			t.Errorf("field %d (%s): got %q", i, f, got)
		}
	}
}
