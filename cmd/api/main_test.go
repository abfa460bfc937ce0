package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/intellidevice/engine/engine/domain"
	"github.com/intellidevice/engine/engine/graph"
	"github.com/intellidevice/engine/engine/structure"
	"github.com/intellidevice/engine/engine/terminology"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadConfig()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Neo4jURL != "neo4j://localhost:7687" {
		t.Fatalf("unexpected neo4j url %s", cfg.Neo4jURL)
	}
	if cfg.CORSOrigin != "*" {
		t.Fatalf("expected default CORS *, got %s", cfg.CORSOrigin)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("TEST_ENV_VAR_XYZ", "custom")
	if v := envOr("TEST_ENV_VAR_XYZ", "default"); v != "custom" {
		t.Fatalf("expected custom, got %s", v)
	}
	if v := envOr("NONEXISTENT_VAR_ABC", "fallback"); v != "fallback" {
		t.Fatalf("expected fallback, got %s", v)
	}
}

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("device_name", "", domain.ErrMissingField), http.StatusBadRequest},
		{fmt.Errorf("terminology: %w: X", domain.ErrUnknownCategory), http.StatusBadRequest},
		{fmt.Errorf("graph: set status r1: %w", domain.ErrReportNotFound), http.StatusNotFound},
		{domain.ErrVocabularyLoad, http.StatusServiceUnavailable},
		{fmt.Errorf("graph: write: %w: reset", domain.ErrGraphWrite), http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, tc.err)
		if rec.Code != tc.want {
			t.Errorf("writeError(%v) = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestAnalyzeStructureInvalidJSON(t *testing.T) {
	srv := &server{analyzer: structure.NewAnalyzer(nil, structure.DefaultOptions(), nil)}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/reports/analyze-structure", bytes.NewBufferString("not json"))
	srv.handleAnalyzeStructure(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAnalyzeStructureKeywordOnly(t *testing.T) {
	srv := &server{analyzer: structure.NewAnalyzer(nil, structure.DefaultOptions(), nil)}
	body := `{"event_description":"设备使用过程中突然黑屏，无法继续对患者监护","device_name":"心电监护仪"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/reports/analyze-structure", bytes.NewBufferString(body))
	srv.handleAnalyzeStructure(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out domain.StructuredRecord
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Confidence <= 0 {
		t.Errorf("confidence = %v", out.Confidence)
	}
	if out.FailureMode == "" {
		t.Error("failure_mode should be extracted from keywords")
	}
}

// testTermsService loads a three-term vocabulary for handler tests.
func testTermsService(t *testing.T) *terminology.Service {
	t.Helper()
	svc := terminology.NewService(func() (terminology.Vocabulary, error) {
		return terminology.Vocabulary{
			"A": {
				{Category: "A", Code: "A01", Label: "显示故障", Aliases: []string{"黑屏"}},
				{Category: "A", Code: "A02", Label: "报警系统故障"},
			},
			"F": {
				{Category: "F", Code: "F01", Label: "死亡"},
			},
		}, nil
	}, nil)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("load vocabulary: %v", err)
	}
	return svc
}

// quietSession answers every statement with an empty result, enough for Ping.
type quietResult struct{}

func (quietResult) Next(context.Context) bool { return false }
func (quietResult) Record() *db.Record        { return nil }
func (quietResult) Err() error                { return nil }

type quietSession struct{}

func (quietSession) Run(context.Context, string, map[string]any) (graph.CypherResult, error) {
	return quietResult{}, nil
}
func (quietSession) ExecuteWrite(_ context.Context, work func(tx graph.CypherRunner) (any, error)) (any, error) {
	return work(quietSession{})
}
func (quietSession) ExecuteRead(_ context.Context, work func(tx graph.CypherRunner) (any, error)) (any, error) {
	return work(quietSession{})
}
func (quietSession) Close(context.Context) error { return nil }

type quietOpener struct{}

func (quietOpener) OpenSession(context.Context) graph.CypherSession { return quietSession{} }

func TestHealthReportsTermTotal(t *testing.T) {
	srv := &server{store: graph.NewWithOpener(quietOpener{}, nil), terms: testTermsService(t)}
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("status = %v, want ok", out["status"])
	}
	if got, ok := out["terms"].(float64); !ok || got != 3 {
		t.Errorf("terms = %v, want 3", out["terms"])
	}
}

func TestReloadReportsTermTotal(t *testing.T) {
	srv := &server{terms: testTermsService(t)}
	rec := httptest.NewRecorder()
	srv.handleReload(rec, httptest.NewRequest("POST", "/api/terminology/reload", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, ok := out["terms"].(float64); !ok || got != 3 {
		t.Errorf("terms = %v, want 3", out["terms"])
	}
	cats, ok := out["categories"].([]any)
	if !ok || len(cats) != 2 {
		t.Errorf("categories = %v, want [A F]", out["categories"])
	}
}

func TestTermSearchRequiresQuery(t *testing.T) {
	srv := &server{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/terms/search", nil)
	srv.handleTermSearch(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	srv := &server{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/admin/clear", nil)
	srv.handleClear(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/x?limit=25&bad=zz", nil)
	if got := queryInt(req, "limit", 100); got != 25 {
		t.Errorf("limit = %d", got)
	}
	if got := queryInt(req, "bad", 100); got != 100 {
		t.Errorf("bad = %d", got)
	}
	if got := queryInt(req, "missing", 7); got != 7 {
		t.Errorf("missing = %d", got)
	}
}
