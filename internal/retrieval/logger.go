package retrieval

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mercora/backend/internal/middleware"
)

// QueryLogEntry is one JSON line of the query log: what was asked, what
// grounded the answer and how long retrieval took.
type QueryLogEntry struct {
	At            time.Time     `json:"at"`
	CorrelationID string        `json:"correlation_id"`
	Question      string        `json:"question"`
	Matches       []LoggedMatch `json:"matches"`
	Grounded      bool          `json:"grounded"`
	Degraded      bool          `json:"degraded"`
	Error         string        `json:"error,omitempty"`
	LatencyMs     int64         `json:"latency_ms"`
}

type LoggedMatch struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

// QueryLogger appends QueryLogEntry lines to a writer. It is safe for
// concurrent use.
type QueryLogger struct {
	mu  sync.Mutex
	enc *json.Encoder
	f   *os.File
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{enc: json.NewEncoder(w)}
}

// NewFileQueryLogger appends to path, creating its directory, and mirrors
// every line to stdout.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path comes from config
	if err != nil {
		return nil, err
	}
	l := NewQueryLogger(io.MultiWriter(os.Stdout, f))
	l.f = f
	return l, nil
}

// Record logs the outcome of one retrieval. err is the embedding or index
// failure that degraded the block, if any.
func (l *QueryLogger) Record(ctx context.Context, question string, block *ContextBlock, elapsed time.Duration, err error) {
	entry := QueryLogEntry{
		At:            time.Now().UTC(),
		CorrelationID: middleware.GetCorrelationID(ctx),
		Question:      question,
		Matches:       make([]LoggedMatch, 0, len(block.Items)),
		Grounded:      block.Grounded(),
		Degraded:      block.Degraded,
		LatencyMs:     elapsed.Milliseconds(),
	}
	for _, it := range block.Items {
		entry.Matches = append(entry.Matches, LoggedMatch{ID: it.ID, Score: it.Score})
	}
	if err != nil {
		entry.Error = err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(entry); err != nil {
		slog.WarnContext(ctx, "query log write failed", "error", err)
	}
}

func (l *QueryLogger) Close() error {
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}
