package reindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"mercora/backend/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// Trigger handles POST /admin/reindex. With ?async=true the run is queued and
// the response is 202; otherwise the report itself is the response body.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		slog.InfoContext(ctx, "queueing reindex", "correlationId", correlationID)
		if err := h.service.Enqueue(ctx, TriggerQueue); err != nil {
			slog.ErrorContext(ctx, "failed to queue reindex", "error", err, "correlationId", correlationID)
			if errors.Is(err, ErrQueueUnavailable) {
				h.writeError(ctx, w, "QUEUE_UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
				return
			}
			h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(ctx, w, http.StatusAccepted, map[string]interface{}{"data": "reindex queued"})
		return
	}

	report, err := h.service.Run(ctx, TriggerAPI)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			h.writeError(ctx, w, "RUN_IN_PROGRESS", err.Error(), http.StatusConflict)
			return
		}
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, report)
}

// Runs handles GET /admin/reindex/runs.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(ctx, w, "VALIDATION_ERROR", "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.service.List(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list reindex runs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []Run{}
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": runs,
		"meta": map[string]int{"count": len(runs)},
	})
}

// LatestRun handles GET /admin/reindex/runs/latest.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	run, err := h.service.Latest(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "No reindex has run yet", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to load latest reindex run", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": run})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
