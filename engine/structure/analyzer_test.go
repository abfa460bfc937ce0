package structure

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/intellidevice/engine/engine/domain"
	"github.com/intellidevice/engine/engine/terminology"
)

func testIndex() *terminology.Index {
	return terminology.NewIndex(terminology.Vocabulary{
		"A": {
			{Category: "A", Code: "A01", Label: "显示故障", Aliases: []string{"黑屏", "无显示"}},
			{Category: "A", Code: "A02", Label: "报警系统故障", Aliases: []string{"不报警", "误报警"}},
		},
		"E": {
			{Category: "E", Code: "E01", Label: "监护中断", Aliases: []string{"无法监护", "无法继续监护"}},
		},
		"F": {
			{Category: "F", Code: "F02", Label: "重度伤害"},
		},
	})
}

func TestAnalyzeMonitorBlackScreen(t *testing.T) {
	a := NewAnalyzer(testIndex(), DefaultOptions(), nil)
	rec := a.Analyze(context.Background(), Input{
		Narrative:  "设备使用过程中突然黑屏，无法继续对患者监护",
		DeviceHint: "心电监护仪",
	})

	if !strings.Contains(rec.DeviceIssue, "黑屏") {
		t.Errorf("device_issue = %q, want a display-fault keyword", rec.DeviceIssue)
	}
	if rec.FailureMode == "" {
		t.Error("failure_mode is empty")
	}
	if rec.Confidence <= 0 || rec.Confidence > 1 {
		t.Errorf("confidence = %v, want (0,1]", rec.Confidence)
	}
	// Alias 黑屏 should carry failure_mode to the matched vocabulary term.
	if rec.FailureMode != "显示故障" {
		t.Errorf("failure_mode = %q, want 显示故障", rec.FailureMode)
	}
	found := false
	for _, mt := range rec.MatchedTerms {
		if mt.Field == domain.FieldFailureMode && mt.Code == "A01" {
			found = true
			if mt.Similarity <= 0 || mt.Similarity > 1 {
				t.Errorf("matched term similarity = %v", mt.Similarity)
			}
		}
	}
	if !found {
		t.Errorf("no matched term recorded for failure_mode: %v", rec.MatchedTerms)
	}
}

func TestAnalyzeEmptyNarrative(t *testing.T) {
	a := NewAnalyzer(testIndex(), DefaultOptions(), nil)
	rec := a.Analyze(context.Background(), Input{Narrative: ""})

	fb := DefaultFallbacks()
	if rec.FailureMode != fb.UnknownFailureMode {
		t.Errorf("failure_mode = %q, want %q", rec.FailureMode, fb.UnknownFailureMode)
	}
	if rec.ClinicalManifestation != fb.UnclassifiedManifestation {
		t.Errorf("clinical_manifestation = %q", rec.ClinicalManifestation)
	}
	if rec.HealthImpact != fb.UnclassifiedImpact {
		t.Errorf("health_impact = %q", rec.HealthImpact)
	}
	if rec.TreatmentAction != fb.UnclassifiedAction {
		t.Errorf("treatment_action = %q", rec.TreatmentAction)
	}
	if rec.Confidence != ConfidenceFloor {
		t.Errorf("confidence = %v, want exactly %v", rec.Confidence, ConfidenceFloor)
	}
	if len(rec.MatchedTerms) != 0 {
		t.Errorf("matched terms on empty narrative: %v", rec.MatchedTerms)
	}
}

func TestConfidenceIsMeanOfFields(t *testing.T) {
	a := NewAnalyzer(testIndex(), DefaultOptions(), nil)
	narratives := []string{
		"",
		"设备黑屏，患者转入ICU抢救",
		"输液泵读数不准，患者轻微不适",
		"监护仪误报警",
	}
	for _, n := range narratives {
		rec := a.Analyze(context.Background(), Input{Narrative: n})
		sum := 0.0
		for _, f := range domain.Fields {
			c := rec.FieldConfidence[f]
			if c < 0 || c > 1 {
				t.Errorf("narrative %q: field %s confidence %v out of range", n, f, c)
			}
			sum += c
		}
		want := sum / float64(len(domain.Fields))
		if diff := rec.Confidence - want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("narrative %q: confidence %v != mean %v", n, rec.Confidence, want)
		}
	}
}

func TestKeywordFallbackWithoutVocabulary(t *testing.T) {
	a := NewAnalyzer(nil, DefaultOptions(), nil)
	rec := a.Analyze(context.Background(), Input{Narrative: "血压计测量不准，读数偏差大"})

	if rec.FailureMode != DefaultFallbacks().MeasurementFault {
		t.Errorf("failure_mode = %q, want measurement fault", rec.FailureMode)
	}
	if rec.FieldConfidence[domain.FieldFailureMode] != ConfidenceMid {
		t.Errorf("keyword-derived confidence = %v, want %v",
			rec.FieldConfidence[domain.FieldFailureMode], ConfidenceMid)
	}
}

type erroringMatcher struct{}

func (erroringMatcher) Search(string, []string, int, float64) (map[string][]terminology.Match, error) {
	return nil, errors.New("index offline")
}

func TestMatcherFailureDegrades(t *testing.T) {
	a := NewAnalyzer(erroringMatcher{}, DefaultOptions(), nil)
	rec := a.Analyze(context.Background(), Input{Narrative: "设备突然黑屏"})

	if rec.FailureMode != DefaultFallbacks().DisplayFault {
		t.Errorf("failure_mode = %q, want keyword fallback despite matcher failure", rec.FailureMode)
	}
}

func TestTreatmentActionVerbatim(t *testing.T) {
	a := NewAnalyzer(testIndex(), DefaultOptions(), nil)
	rec := a.Analyze(context.Background(), Input{
		Narrative:   "设备黑屏",
		ActionTaken: "立即更换备用监护仪并通知设备科",
	})
	if rec.TreatmentAction != "立即更换备用监护仪并通知设备科" {
		t.Errorf("treatment_action = %q, want verbatim action text", rec.TreatmentAction)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := NewAnalyzer(testIndex(), DefaultOptions(), nil)
	in := Input{Narrative: "监护仪黑屏，患者呼吸困难，转入ICU", DeviceHint: "心电监护仪"}

	first := a.Analyze(context.Background(), in)
	for i := 0; i < 3; i++ {
		again := a.Analyze(context.Background(), in)
		if first.Confidence != again.Confidence ||
			first.FailureMode != again.FailureMode ||
			first.DeviceIssue != again.DeviceIssue {
			t.Fatal("analysis not deterministic")
		}
	}
}

func TestMergePrefersResolvedFields(t *testing.T) {
	base := domain.StructuredRecord{
		FailureMode:     "显示故障",
		TreatmentAction: "",
		FieldConfidence: map[domain.Field]float64{
			domain.FieldFailureMode:     0.9,
			domain.FieldDeviceIssue:     ConfidenceFloor,
			domain.FieldTreatmentAction: ConfidenceFloor,
		},
	}
	extra := domain.StructuredRecord{
		FailureMode:     "电源故障",
		DeviceIssue:     "屏幕无显示",
		TreatmentAction: "更换设备",
	}

	out := Merge(base, extra)
	if out.FailureMode != "显示故障" {
		t.Errorf("merge overwrote a resolved field: %q", out.FailureMode)
	}
	if out.DeviceIssue != "屏幕无显示" {
		t.Errorf("merge did not fill fallback device_issue: %q", out.DeviceIssue)
	}
	if out.TreatmentAction != "更换设备" {
		t.Errorf("merge did not fill empty treatment_action: %q", out.TreatmentAction)
	}
	if out.FieldConfidence[domain.FieldDeviceIssue] != ConfidenceMid {
		t.Errorf("merged field confidence = %v, want %v",
			out.FieldConfidence[domain.FieldDeviceIssue], ConfidenceMid)
	}
}
