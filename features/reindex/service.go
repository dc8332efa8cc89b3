package reindex

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mercora/backend/internal/config"
	"mercora/backend/internal/indexer"
	"mercora/backend/internal/middleware"
)

var (
	ErrRunInProgress    = errors.New("a reindex run is already in progress")
	ErrQueueUnavailable = errors.New("reindex queue not configured")
)

type Reindexer interface {
	ReindexAll(ctx context.Context) *indexer.Report
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// Service serializes reindex runs within the process and records their outcome.
type Service struct {
	orch Reindexer
	repo Repository
	pub  EventPublisher
	mu   sync.Mutex
}

// NewService builds the service. pub may be nil, in which case reports are not
// broadcast and Enqueue is unavailable.
func NewService(orch Reindexer, repo Repository, pub EventPublisher) *Service {
	return &Service{orch: orch, repo: repo, pub: pub}
}

// Run executes a full rebuild synchronously. Persisting or publishing the report
// is best effort: the report is returned even when those steps fail.
func (s *Service) Run(ctx context.Context, trigger string) (*indexer.Report, error) {
	if !s.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.mu.Unlock()

	slog.InfoContext(ctx, "reindex requested", "trigger", trigger)
	report := s.orch.ReindexAll(ctx)

	run, err := runFromReport(trigger, report)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode reindex report", "error", err, "run_id", report.RunID)
		return report, nil
	}
	if err := s.repo.Save(ctx, run); err != nil {
		slog.ErrorContext(ctx, "failed to save reindex run", "error", err, "run_id", report.RunID)
	}
	if s.pub != nil {
		if err := s.pub.Publish(config.TopicReindexReport, run.Report); err != nil {
			slog.WarnContext(ctx, "failed to publish reindex report", "error", err, "run_id", report.RunID)
		}
	}
	return report, nil
}

// Enqueue asks a worker to run the rebuild.
func (s *Service) Enqueue(ctx context.Context, trigger string) error {
	if s.pub == nil {
		return ErrQueueUnavailable
	}
	body, err := json.Marshal(Request{
		Trigger:       trigger,
		RequestedAt:   time.Now().UTC(),
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return err
	}
	return s.pub.Publish(config.TopicReindex, body)
}

func (s *Service) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}
	return s.repo.List(ctx, limit)
}

func (s *Service) Latest(ctx context.Context) (*Run, error) {
	return s.repo.Latest(ctx)
}

// Running reports whether a rebuild currently holds the lock.
func (s *Service) Running() bool {
	if s.mu.TryLock() {
		s.mu.Unlock()
		return false
	}
	return true
}
