// Package ingest is the report intake pipeline: validation, PII scrubbing,
// fingerprint deduplication, structure analysis, and confidence-based routing
// into the graph.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/intellidevice/engine/engine/domain"
	"github.com/intellidevice/engine/engine/structure"
	"github.com/intellidevice/engine/pkg/fn"
	"github.com/intellidevice/engine/pkg/metrics"
)

// Routing thresholds. At or above AutoConfirm the structure is written and
// the report confirmed without review; at or above Review it is queued for
// human review; below Review it stays pending.
const (
	AutoConfirmThreshold = 0.60
	ReviewThreshold      = 0.30
)

// Route is the routing decision for a processed report.
type Route string

const (
	RouteConfirmed Route = "confirmed"
	RouteReview    Route = "review"
	RoutePending   Route = "pending"
	RouteDuplicate Route = "duplicate"
)

// Store is the graph persistence the pipeline needs.
type Store interface {
	WriteReport(ctx context.Context, r domain.Report) error
	WriteStructure(ctx context.Context, reportID string, rec domain.StructuredRecord) error
	HasFingerprint(ctx context.Context, fingerprint string) (bool, error)
}

// Analyzer produces a structured record from a narrative.
type Analyzer interface {
	Analyze(ctx context.Context, in structure.Input) domain.StructuredRecord
}

// ReviewItem is queued when a report lands in the review band.
type ReviewItem struct {
	ReportID   string                  `json:"report_id"`
	Confidence float64                 `json:"confidence"`
	Record     domain.StructuredRecord `json:"record"`
}

// Deps holds the external dependencies for the pipeline.
type Deps struct {
	Store    Store
	Analyzer Analyzer
	// PublishReview queues a review item; nil disables queueing (the report
	// still lands in the review route).
	PublishReview func(ctx context.Context, item ReviewItem) error
	Logger        *slog.Logger
	Metrics       *metrics.Registry

	// Now and NewID exist for deterministic tests.
	Now   func() time.Time
	NewID func() string
}

func (d *Deps) fill() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
}

// Outcome is the pipeline result for one submission.
type Outcome struct {
	Report domain.Report           `json:"report"`
	Record domain.StructuredRecord `json:"record"`
	Route  Route                   `json:"route"`
}

// submission carries a report through the stages.
type submission struct {
	in     domain.ReportIn
	report domain.Report
}

// Validate rejects malformed submissions.
var Validate fn.Stage[domain.ReportIn, domain.ReportIn] = func(_ context.Context, in domain.ReportIn) fn.Result[domain.ReportIn] {
	if err := domain.ValidateReportIn(in); err != nil {
		return fn.Err[domain.ReportIn](err)
	}
	return fn.Ok(in)
}

// Scrub drops PII before anything is persisted or logged.
var Scrub fn.Stage[domain.ReportIn, domain.ReportIn] = func(_ context.Context, in domain.ReportIn) fn.Result[domain.ReportIn] {
	return fn.Ok(in.Scrubbed())
}

// newAssemble builds the Report: id, fingerprint, processed-at, and a
// classified severity when the submitter gave none.
func newAssemble(deps Deps) fn.Stage[domain.ReportIn, submission] {
	return func(_ context.Context, in domain.ReportIn) fn.Result[submission] {
		severity := in.Severity
		if !severity.Valid() {
			severity = domain.ClassifySeverity(in.Description)
		}
		r := domain.Report{
			ID:            deps.NewID(),
			HospitalID:    in.HospitalID,
			DeviceName:    in.DeviceName,
			Manufacturer:  in.Manufacturer,
			Model:         in.Model,
			LotSN:         in.LotSN,
			EventDatetime: in.EventDatetime,
			Description:   in.Description,
			Severity:      severity,
			ActionTaken:   in.ActionTaken,
			ProcessedAt:   deps.Now().UTC(),
			Status:        domain.StatusReceived,
			Fingerprint:   domain.Fingerprint(in),
		}
		return fn.Ok(submission{in: in, report: r})
	}
}

// newDedup short-circuits resubmissions of an already-ingested report.
func newDedup(deps Deps) fn.Stage[submission, submission] {
	return func(ctx context.Context, sub submission) fn.Result[submission] {
		exists, err := deps.Store.HasFingerprint(ctx, sub.report.Fingerprint)
		if err != nil {
			// Dedup is best-effort: a lookup failure must not block intake.
			deps.Logger.WarnContext(ctx, "dedup check failed", "error", err)
			return fn.Ok(sub)
		}
		if exists {
			sub.report.Status = domain.StatusDuplicate
		}
		return fn.Ok(sub)
	}
}

// newProcess analyzes, routes, and persists a deduplicated submission.
func newProcess(deps Deps) fn.Stage[submission, Outcome] {
	return func(ctx context.Context, sub submission) fn.Result[Outcome] {
		if sub.report.Status == domain.StatusDuplicate {
			deps.Logger.InfoContext(ctx, "duplicate submission skipped",
				"fingerprint", sub.report.Fingerprint)
			return fn.Ok(Outcome{Report: sub.report, Route: RouteDuplicate})
		}

		rec := deps.Analyzer.Analyze(ctx, structure.Input{
			Narrative:   sub.in.Description,
			DeviceHint:  sub.in.DeviceName,
			ActionTaken: sub.in.ActionTaken,
		})

		route := routeFor(rec.Confidence)
		switch route {
		case RouteConfirmed:
			sub.report.Status = domain.StatusConfirmed
		case RouteReview:
			sub.report.Status = domain.StatusInReview
		case RoutePending:
			sub.report.Status = domain.StatusPending
		}

		if err := deps.Store.WriteReport(ctx, sub.report); err != nil {
			return fn.Err[Outcome](fmt.Errorf("ingest: persist report: %w", err))
		}

		switch route {
		case RouteConfirmed:
			if err := deps.Store.WriteStructure(ctx, sub.report.ID, rec); err != nil {
				return fn.Err[Outcome](fmt.Errorf("ingest: persist structure: %w", err))
			}
			deps.Logger.InfoContext(ctx, "report auto-confirmed",
				"report_id", sub.report.ID,
				"confidence", rec.Confidence,
				"matched_terms", len(rec.MatchedTerms))
		case RouteReview:
			if deps.PublishReview != nil {
				item := ReviewItem{ReportID: sub.report.ID, Confidence: rec.Confidence, Record: rec}
				if err := deps.PublishReview(ctx, item); err != nil {
					deps.Logger.WarnContext(ctx, "review queue publish failed",
						"report_id", sub.report.ID, "error", err)
				}
			}
			deps.Logger.InfoContext(ctx, "report queued for review",
				"report_id", sub.report.ID, "confidence", rec.Confidence)
		case RoutePending:
			deps.Logger.InfoContext(ctx, "report pending manual handling",
				"report_id", sub.report.ID, "confidence", rec.Confidence)
		}

		return fn.Ok(Outcome{Report: sub.report, Record: rec, Route: route})
	}
}

// routeFor maps a confidence score to its routing decision.
func routeFor(confidence float64) Route {
	switch {
	case confidence >= AutoConfirmThreshold:
		return RouteConfirmed
	case confidence >= ReviewThreshold:
		return RouteReview
	default:
		return RoutePending
	}
}

// NewPipeline composes the intake stages with tracing.
func NewPipeline(deps Deps) fn.Stage[domain.ReportIn, Outcome] {
	deps.fill()

	validated := fn.Then(Validate, Scrub)
	assembled := fn.Then(validated, newAssemble(deps))
	deduped := fn.Then(assembled, newDedup(deps))
	processed := fn.Then(deduped, newProcess(deps))
	traced := fn.TracedStage("ingest.pipeline", processed)

	if deps.Metrics == nil {
		return traced
	}
	outcomes := deps.Metrics
	return func(ctx context.Context, in domain.ReportIn) fn.Result[Outcome] {
		start := time.Now()
		result := traced(ctx, in)
		outcomes.Histogram("ingest_duration_seconds", "Intake pipeline duration.", nil).Since(start)
		if result.IsErr() {
			outcomes.Counter(metrics.WithLabels("ingest_reports_total", "route", "error"),
				"Reports processed by routing outcome.").Inc()
			return result
		}
		out, _ := result.Unwrap()
		outcomes.Counter(metrics.WithLabels("ingest_reports_total", "route", string(out.Route)),
			"Reports processed by routing outcome.").Inc()
		return result
	}
}
