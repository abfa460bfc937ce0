package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/intellidevice/engine/engine/domain"
)

// ConfirmStore is the persistence surface for manual confirmation.
type ConfirmStore interface {
	WriteStructure(ctx context.Context, reportID string, rec domain.StructuredRecord) error
	SetStatus(ctx context.Context, reportID, status string) error
}

// Confirm persists a reviewed structured record and marks the report
// confirmed. The audit record carries who-independent facts only: the
// confidence and the matched-term count.
func Confirm(ctx context.Context, store ConfirmStore, log *slog.Logger, reportID string, rec domain.StructuredRecord) error {
	if log == nil {
		log = slog.Default()
	}
	if reportID == "" {
		return domain.NewValidationError("report_id", "", domain.ErrMissingField)
	}
	if err := store.WriteStructure(ctx, reportID, rec); err != nil {
		return fmt.Errorf("ingest: confirm %s: %w", reportID, err)
	}
	if err := store.SetStatus(ctx, reportID, domain.StatusConfirmed); err != nil {
		return fmt.Errorf("ingest: confirm %s: %w", reportID, err)
	}
	log.InfoContext(ctx, "structure confirmed",
		"report_id", reportID,
		"confidence", rec.Confidence,
		"matched_terms", len(rec.MatchedTerms))
	return nil
}
