package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"
	"mercora/backend/features/reindex"
	"mercora/backend/internal/indexer"
	"mercora/backend/internal/middleware"
)

type Runner interface {
	Run(ctx context.Context, trigger string) (*indexer.Report, error)
	Latest(ctx context.Context) (*reindex.Run, error)
}

// ReindexConsumer runs a full rebuild for each trigger on the reindex topic.
// Consumers should be configured with MaxInFlight=1.
type ReindexConsumer struct {
	runner  Runner
	timeout time.Duration
}

func NewReindexConsumer(r Runner, timeout time.Duration) *ReindexConsumer {
	return &ReindexConsumer{runner: r, timeout: timeout}
}

func (h *ReindexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload reindex.Request
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	// A run that started after the trigger was requested already covers it.
	if !payload.RequestedAt.IsZero() {
		if last, err := h.runner.Latest(ctx); err == nil && last.StartedAt.After(payload.RequestedAt) {
			slog.InfoContext(ctx, "reindex trigger already satisfied", "run_id", last.ID, "requested_at", payload.RequestedAt)
			return nil
		}
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	trigger := payload.Trigger
	if trigger == "" {
		trigger = reindex.TriggerQueue
	}

	report, err := h.runner.Run(ctx, trigger)
	if err != nil {
		if errors.Is(err, reindex.ErrRunInProgress) {
			slog.InfoContext(ctx, "reindex busy, requeueing trigger")
		}
		return err // Retry
	}

	slog.InfoContext(ctx, "queued reindex finished",
		"run_id", report.RunID,
		"success", report.Success,
		"indexed", report.TotalIndexed,
		"errors", report.TotalErrors,
	)
	return nil
}
