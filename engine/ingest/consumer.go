package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/intellidevice/engine/engine/domain"
	"github.com/intellidevice/engine/pkg/natsutil"
)

const (
	// IngestSubject receives incoming report submissions.
	IngestSubject = "reports.ingest"
	// ReviewSubject receives records routed to human review.
	ReviewSubject = "reports.review"
	// DLQSubject is the dead letter queue for submissions that keep failing.
	DLQSubject = "reports.ingest.dlq"
	// MaxRetries before a submission is sent to the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Report  domain.ReportIn `json:"report"`
	Error   string          `json:"error"`
	Retries int             `json:"retries"`
}

// StartConsumer subscribes the intake pipeline to the ingest subject with
// retry and DLQ handling. Review items are published to ReviewSubject unless
// deps already carries a publisher.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	if deps.PublishReview == nil {
		deps.PublishReview = func(ctx context.Context, item ReviewItem) error {
			return natsutil.Publish(ctx, nc, ReviewSubject, item)
		}
	}
	deps.fill()
	pipeline := NewPipeline(deps)
	log := deps.Logger

	return nc.Subscribe(IngestSubject, func(msg *nats.Msg) {
		var in domain.ReportIn
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		ctx := context.Background()
		result := pipeline(ctx, in)
		if result.IsOk() {
			out, _ := result.Unwrap()
			log.Info("ingest: processed",
				"report_id", out.Report.ID,
				"route", out.Route,
				"confidence", out.Record.Confidence)
			return
		}

		_, pipeErr := result.Unwrap()
		if !domain.IsRetryable(pipeErr) {
			// Validation failures never succeed on retry.
			log.Error("ingest: rejected", "error", pipeErr)
			return
		}

		retries++
		log.Error("ingest: pipeline failed", "error", pipeErr, "retry", retries)
		if retries >= MaxRetries {
			dlq := dlqMessage{Report: in, Error: pipeErr.Error(), Retries: retries}
			data, _ := json.Marshal(dlq)
			if err := nc.Publish(DLQSubject, data); err != nil {
				log.Error("ingest: DLQ publish failed", "error", err)
			}
			return
		}
		retryMsg := nats.NewMsg(IngestSubject)
		retryMsg.Data = msg.Data
		retryMsg.Header = nats.Header{}
		retryMsg.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
		if err := nc.PublishMsg(retryMsg); err != nil {
			log.Error("ingest: retry publish failed", "error", err)
		}
	})
}
