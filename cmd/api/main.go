// Package main implements the adverse-event analytics API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/intellidevice/engine/engine/domain"
	"github.com/intellidevice/engine/engine/graph"
	"github.com/intellidevice/engine/engine/ingest"
	"github.com/intellidevice/engine/engine/risk"
	"github.com/intellidevice/engine/engine/structure"
	"github.com/intellidevice/engine/engine/terminology"
	"github.com/intellidevice/engine/pkg/llm"
	"github.com/intellidevice/engine/pkg/metrics"
	"github.com/intellidevice/engine/pkg/mid"
)

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	Neo4jURL   string
	Neo4jUser  string
	Neo4jPass  string
	NatsURL    string
	VocabDir   string
	CORSOrigin string
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
}

func loadConfig() Config {
	return Config{
		Port:       envOr("PORT", "8080"),
		Neo4jURL:   envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:  envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:  envOr("NEO4J_PASS", "password"),
		NatsURL:    envOr("NATS_URL", ""),
		VocabDir:   envOr("VOCAB_DIR", "./vocab"),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
		LLMBaseURL: envOr("LLM_BASE_URL", ""),
		LLMAPIKey:  envOr("LLM_API_KEY", ""),
		LLMModel:   envOr("LLM_MODEL", ""),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Neo4j ---
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)

	store := graph.New(driver, logger)

	// --- Terminology index ---
	terms := terminology.NewService(func() (terminology.Vocabulary, error) {
		return terminology.LoadDir(cfg.VocabDir)
	}, logger)
	if err := terms.Load(ctx); err != nil {
		return fmt.Errorf("load vocabulary: %w", err)
	}

	// --- Analyzers ---
	analyzer := structure.NewAnalyzer(terms, structure.DefaultOptions(), logger)
	risks := risk.NewAnalyzer(logger)

	var structurer structure.Structurer
	if cfg.LLMBaseURL != "" || cfg.LLMAPIKey != "" {
		opts := llm.DefaultOptions()
		if cfg.LLMBaseURL != "" {
			opts.BaseURL = cfg.LLMBaseURL
		}
		if cfg.LLMModel != "" {
			opts.Model = cfg.LLMModel
		}
		opts.APIKey = cfg.LLMAPIKey
		structurer = llm.New(opts, terms, logger)
	}

	reg := metrics.New()

	deps := ingest.Deps{
		Store:    store,
		Analyzer: analyzer,
		Logger:   logger,
		Metrics:  reg,
	}

	// --- NATS consumer (optional) ---
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		sub, err := ingest.StartConsumer(nc, deps)
		if err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		defer sub.Unsubscribe()
		logger.Info("ingest consumer started", "subject", ingest.IngestSubject)
	}

	srv := &server{
		cfg:        cfg,
		store:      store,
		terms:      terms,
		analyzer:   analyzer,
		structurer: structurer,
		risks:      risks,
		pipeline:   ingest.NewPipeline(deps),
		reg:        reg,
		log:        logger,
	}

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", srv.handleHealth)
	mux.HandleFunc("POST /api/reports", srv.handleIngest)
	mux.HandleFunc("POST /api/reports/analyze-structure", srv.handleAnalyzeStructure)
	mux.HandleFunc("POST /api/reports/structured-confirm", srv.handleConfirm)
	mux.HandleFunc("GET /api/terms/search", srv.handleTermSearch)
	mux.HandleFunc("GET /api/terms/{code}/neighbors", srv.handleTermNeighbors)
	mux.HandleFunc("POST /api/terms/import", srv.handleTermImport)
	mux.HandleFunc("POST /api/terminology/reload", srv.handleReload)
	mux.HandleFunc("GET /api/case/{id}/graph", srv.handleCaseGraph)
	mux.HandleFunc("GET /api/case/recent-graph", srv.handleRecentGraph)
	mux.HandleFunc("POST /api/graph/risk-analysis", srv.handleRiskAnalysis)
	mux.HandleFunc("GET /api/graph/stats", srv.handleStats)
	mux.HandleFunc("POST /api/admin/clear", srv.handleClear)
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("engine-api"),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

// writeJSON encodes v with status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrMissingField),
		errors.Is(err, domain.ErrBadSeverity),
		errors.Is(err, domain.ErrUnknownCategory):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrReportNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrVocabularyLoad):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrGraphWrite):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
