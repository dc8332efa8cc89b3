package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"mercora/backend/features/reindex"
	"mercora/backend/internal/middleware"
)

type CatalogCounter interface {
	CountProducts(ctx context.Context) (int, error)
	CountArticles(ctx context.Context) (int, error)
}

type RunRepo interface {
	Count(ctx context.Context) (int, error)
	Latest(ctx context.Context) (*reindex.Run, error)
}

type VectorIndex interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	catalog CatalogCounter
	runs    RunRepo
	index   VectorIndex
}

func NewHandler(c CatalogCounter, r RunRepo, v VectorIndex) *Handler {
	return &Handler{catalog: c, runs: r, index: v}
}

type LastRun struct {
	ID           string    `json:"id"`
	Trigger      string    `json:"trigger"`
	Success      bool      `json:"success"`
	TotalIndexed int       `json:"totalIndexed"`
	TotalErrors  int       `json:"totalErrors"`
	FinishedAt   time.Time `json:"finishedAt"`
}

type StatsResponse struct {
	Products       int      `json:"products"`
	Articles       int      `json:"articles"`
	Documents      int      `json:"documents"`
	IndexAvailable bool     `json:"indexAvailable"`
	ReindexRuns    int      `json:"reindexRuns"`
	LastRun        *LastRun `json:"lastRun"`
}

// GetStats reports catalog size against what the vector index currently holds.
// An unreachable index is reported in the body rather than failing the request.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	pCount, err := h.catalog.CountProducts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count products", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count products", http.StatusInternalServerError)
		return
	}

	aCount, err := h.catalog.CountArticles(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count articles", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count articles", http.StatusInternalServerError)
		return
	}

	rCount, err := h.runs.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count reindex runs", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count reindex runs", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Products:       pCount,
		Articles:       aCount,
		ReindexRuns:    rCount,
		IndexAvailable: true,
	}

	dCount, err := h.index.Count(ctx)
	if err != nil {
		slog.WarnContext(ctx, "vector index unavailable", "error", err, "correlationId", correlationID)
		resp.IndexAvailable = false
	}
	resp.Documents = dCount

	latest, err := h.runs.Latest(ctx)
	switch {
	case err == nil:
		resp.LastRun = &LastRun{
			ID:           latest.ID,
			Trigger:      latest.Trigger,
			Success:      latest.Success,
			TotalIndexed: latest.TotalIndexed,
			TotalErrors:  latest.TotalErrors,
			FinishedAt:   latest.FinishedAt,
		}
	case !errors.Is(err, sql.ErrNoRows):
		slog.WarnContext(ctx, "failed to load latest reindex run", "error", err, "correlationId", correlationID)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
