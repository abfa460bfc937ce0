// Command import batch-loads adverse-event reports from an .xlsx or .json
// file, either publishing them to the NATS ingest subject or running the
// intake pipeline inline against Neo4j.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/intellidevice/engine/engine/domain"
	"github.com/intellidevice/engine/engine/graph"
	"github.com/intellidevice/engine/engine/ingest"
	"github.com/intellidevice/engine/engine/structure"
	"github.com/intellidevice/engine/engine/terminology"
	"github.com/intellidevice/engine/pkg/natsutil"
)

func main() {
	file := flag.String("file", "", "input file (.xlsx or .json)")
	natsURL := flag.String("nats", "", "NATS URL (if empty, runs the pipeline inline)")
	subject := flag.String("subject", ingest.IngestSubject, "NATS subject to publish to")
	neo4jURL := flag.String("neo4j", envOr("NEO4J_URL", "neo4j://localhost:7687"), "Neo4j bolt URL (inline mode)")
	neo4jUser := flag.String("neo4j-user", envOr("NEO4J_USER", "neo4j"), "Neo4j user (inline mode)")
	neo4jPass := flag.String("neo4j-pass", envOr("NEO4J_PASS", "password"), "Neo4j password (inline mode)")
	vocabDir := flag.String("vocab", envOr("VOCAB_DIR", "./vocab"), "vocabulary directory (inline mode)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: import -file reports.xlsx [-nats nats://...]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reports, err := readReports(*file)
	if err != nil {
		logger.Error("read input", "err", err)
		os.Exit(1)
	}
	logger.Info("input parsed", "file", *file, "reports", len(reports))

	if *natsURL != "" {
		if err := publishAll(ctx, *natsURL, *subject, reports, logger); err != nil {
			logger.Error("publish", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := runInline(ctx, inlineConfig{
		neo4jURL:  *neo4jURL,
		neo4jUser: *neo4jUser,
		neo4jPass: *neo4jPass,
		vocabDir:  *vocabDir,
	}, reports, logger); err != nil {
		logger.Error("import", "err", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// readReports parses the input file by extension.
func readReports(path string) ([]domain.ReportIn, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ingest.ReadWorkbook(f)
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var reports []domain.ReportIn
		if err := json.Unmarshal(data, &reports); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return reports, nil
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func publishAll(ctx context.Context, url, subject string, reports []domain.ReportIn, logger *slog.Logger) error {
	nc, err := nats.Connect(url)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	published := 0
	for _, r := range reports {
		if err := natsutil.Publish(ctx, nc, subject, r); err != nil {
			logger.Warn("publish failed", "hospital_id", r.HospitalID, "err", err)
			continue
		}
		published++
	}
	logger.Info("published", "subject", subject, "count", published)
	return nil
}

type inlineConfig struct {
	neo4jURL  string
	neo4jUser string
	neo4jPass string
	vocabDir  string
}

func runInline(ctx context.Context, cfg inlineConfig, reports []domain.ReportIn, logger *slog.Logger) error {
	driver, err := neo4j.NewDriverWithContext(cfg.neo4jURL, neo4j.BasicAuth(cfg.neo4jUser, cfg.neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)

	store := graph.New(driver, logger)
	terms := terminology.NewService(func() (terminology.Vocabulary, error) {
		return terminology.LoadDir(cfg.vocabDir)
	}, logger)
	if err := terms.Load(ctx); err != nil {
		return fmt.Errorf("load vocabulary: %w", err)
	}

	pipeline := ingest.NewPipeline(ingest.Deps{
		Store:    store,
		Analyzer: structure.NewAnalyzer(terms, structure.DefaultOptions(), logger),
		Logger:   logger,
	})

	counts := map[ingest.Route]int{}
	failed := 0
	for _, r := range reports {
		out, err := pipeline(ctx, r).Unwrap()
		if err != nil {
			failed++
			logger.Warn("report rejected", "hospital_id", r.HospitalID, "err", err)
			continue
		}
		counts[out.Route]++
	}
	logger.Info("import finished",
		"confirmed", counts[ingest.RouteConfirmed],
		"review", counts[ingest.RouteReview],
		"pending", counts[ingest.RoutePending],
		"duplicate", counts[ingest.RouteDuplicate],
		"failed", failed)
	return nil
}
