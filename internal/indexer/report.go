package indexer

import "time"

type Status string

const (
	StatusIndexed Status = "indexed"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

type Detail struct {
	ID         string `json:"id,omitempty"`
	SourceType string `json:"sourceType"`
	SourceID   string `json:"sourceId"`
	Status     Status `json:"status"`
	Error      string `json:"error,omitempty"`
}

// Report summarizes one rebuild. Record-level failures are in Details;
// Errors holds failures of whole steps (clearing, listing, pruning). A failed
// listing also counts toward TotalErrors.
type Report struct {
	RunID           string    `json:"runId"`
	Success         bool      `json:"success"`
	TotalConsidered int       `json:"totalConsidered"`
	TotalIndexed    int       `json:"totalIndexed"`
	TotalSkipped    int       `json:"totalSkipped"`
	TotalErrors     int       `json:"totalErrors"`
	Cleared         int       `json:"cleared"`
	Pruned          int       `json:"pruned"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	Details         []Detail  `json:"details"`
	Errors          []string  `json:"errors,omitempty"`

	listFailures int
}

// IndexedIDs returns the document ids that made it into the index.
func (r *Report) IndexedIDs() []string {
	var ids []string
	for _, d := range r.Details {
		if d.Status == StatusIndexed {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

func (r *Report) finish() {
	r.FinishedAt = time.Now()
	r.ExecutionTimeMs = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	r.TotalConsidered = len(r.Details)
	r.TotalIndexed, r.TotalSkipped, r.TotalErrors = 0, 0, r.listFailures
	for _, d := range r.Details {
		switch d.Status {
		case StatusIndexed:
			r.TotalIndexed++
		case StatusSkipped:
			r.TotalSkipped++
		case StatusError:
			r.TotalErrors++
		}
	}
	r.Success = r.TotalErrors == 0 && len(r.Errors) == 0
}
