package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/intellidevice/engine/engine/domain"
	"github.com/intellidevice/engine/engine/graph"
	"github.com/intellidevice/engine/engine/ingest"
	"github.com/intellidevice/engine/engine/risk"
	"github.com/intellidevice/engine/engine/structure"
	"github.com/intellidevice/engine/engine/terminology"
	"github.com/intellidevice/engine/pkg/fn"
	"github.com/intellidevice/engine/pkg/metrics"
)

type server struct {
	cfg        Config
	store      *graph.Store
	terms      *terminology.Service
	analyzer   *structure.Analyzer
	structurer structure.Structurer
	risks      *risk.Analyzer
	pipeline   fn.Stage[domain.ReportIn, ingest.Outcome]
	reg        *metrics.Registry
	log        *slog.Logger
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if idx := s.terms.Index(); idx != nil {
		resp["terms"] = idx.TotalTerms()
	}
	if err := s.store.Ping(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["graph"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var in domain.ReportIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	out, err := s.pipeline(r.Context(), in).Unwrap()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"report_id":  out.Report.ID,
		"status":     out.Report.Status,
		"route":      out.Route,
		"confidence": out.Record.Confidence,
		"record":     out.Record,
	})
}

// analyzeRequest is the JSON body for POST /api/reports/analyze-structure.
type analyzeRequest struct {
	Description string `json:"event_description"`
	DeviceName  string `json:"device_name,omitempty"`
	ActionTaken string `json:"action_taken,omitempty"`
	TopK        int    `json:"top_k,omitempty"`
	UseLLM      bool   `json:"use_llm,omitempty"`
}

func (s *server) handleAnalyzeStructure(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event_description is required"})
		return
	}

	rec := s.analyzer.Analyze(r.Context(), structure.Input{
		Narrative:   req.Description,
		DeviceHint:  req.DeviceName,
		ActionTaken: req.ActionTaken,
	})

	// The LLM is a caller-invoked capability: only consulted on request, and
	// only when rule-based extraction is not already confident.
	if req.UseLLM && s.structurer != nil && rec.Confidence < ingest.AutoConfirmThreshold {
		extra, err := s.structurer.Structure(r.Context(), req.Description, req.TopK)
		if err != nil {
			s.log.Warn("llm structurer failed", "err", err)
		} else {
			rec = structure.Merge(rec, extra)
		}
	}

	writeJSON(w, http.StatusOK, rec)
}

// confirmRequest is the JSON body for POST /api/reports/structured-confirm.
type confirmRequest struct {
	ReportID string                  `json:"report_id"`
	Record   domain.StructuredRecord `json:"record"`
}

func (s *server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := ingest.Confirm(r.Context(), s.store, s.log, req.ReportID, req.Record); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"report_id": req.ReportID, "status": domain.StatusConfirmed})
}

func (s *server) handleTermSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}
	var categories []string
	if raw := r.URL.Query().Get("categories"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				categories = append(categories, c)
			}
		}
	}
	topK := queryInt(r, "top_k", terminology.DefaultTopK)
	threshold := terminology.DefaultThreshold
	if v := r.URL.Query().Get("threshold"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			threshold = f
		}
	}

	matches, err := s.terms.Search(q, categories, topK, threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "results": matches})
}

func (s *server) handleTermNeighbors(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	hood, err := s.store.TermNeighbors(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hood)
}

func (s *server) handleTermImport(w http.ResponseWriter, r *http.Request) {
	vocab, err := terminology.LoadDir(s.cfg.VocabDir)
	if err != nil {
		writeError(w, err)
		return
	}
	count, err := s.store.ImportStandardTerms(r.Context(), vocab)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}

func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.terms.Reload(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	idx := s.terms.Index()
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": idx.Categories(),
		"terms":      idx.TotalTerms(),
	})
}

func (s *server) handleCaseGraph(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.CaseGraph(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) handleRecentGraph(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.RecentGraph(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// riskRequest is the JSON body for POST /api/graph/risk-analysis.
type riskRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (s *server) handleRiskAnalysis(w http.ResponseWriter, r *http.Request) {
	var req riskRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	snap, err := s.store.RecentGraph(r.Context(), req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := s.risks.Summarize(r.Context(), snap)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if s.reg != nil {
		for label, n := range stats.Nodes {
			s.reg.Gauge(metrics.WithLabels("graph_nodes", "label", label),
				"Graph node count by label.").Set(n)
		}
		for rel, n := range stats.Relationships {
			s.reg.Gauge(metrics.WithLabels("graph_relationships", "type", rel),
				"Graph relationship count by type.").Set(n)
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pass confirm=true to clear the graph"})
		return
	}
	deleted, err := s.store.ClearAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
