package reindex

import (
	"encoding/json"
	"time"

	"mercora/backend/internal/indexer"
)

const (
	TriggerAPI      = "api"
	TriggerQueue    = "queue"
	TriggerCLI      = "cli"
	TriggerStartup  = "startup"
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// Run is the persisted summary of one finished reindex. Report holds the full
// per-record breakdown as JSON.
type Run struct {
	ID              string          `json:"id"`
	Trigger         string          `json:"trigger"`
	Success         bool            `json:"success"`
	TotalIndexed    int             `json:"totalIndexed"`
	TotalSkipped    int             `json:"totalSkipped"`
	TotalErrors     int             `json:"totalErrors"`
	ExecutionTimeMs int64           `json:"executionTimeMs"`
	StartedAt       time.Time       `json:"startedAt"`
	FinishedAt      time.Time       `json:"finishedAt"`
	Report          json.RawMessage `json:"report,omitempty"`
}

func runFromReport(trigger string, r *indexer.Report) (*Run, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return &Run{
		ID:              r.RunID,
		Trigger:         trigger,
		Success:         r.Success,
		TotalIndexed:    r.TotalIndexed,
		TotalSkipped:    r.TotalSkipped,
		TotalErrors:     r.TotalErrors,
		ExecutionTimeMs: r.ExecutionTimeMs,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		Report:          body,
	}, nil
}

// Request is the payload carried on the reindex topic.
type Request struct {
	Trigger       string    `json:"trigger"`
	RequestedAt   time.Time `json:"requested_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}
