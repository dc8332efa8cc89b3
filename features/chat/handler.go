package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"mercora/backend/internal/assistant"
	"mercora/backend/internal/catalog"
	"mercora/backend/internal/conversation"
	"mercora/backend/internal/middleware"
)

const (
	MaxQuestionChars = 2000
	MaxHistoryTurns  = 100
	maxBodyBytes     = 1 << 20
)

type Answerer interface {
	Answer(ctx context.Context, req assistant.Request) *assistant.Answer
}

type ProductLookup interface {
	GetProductSummaries(ctx context.Context, ids []string) ([]catalog.ProductSummary, error)
}

type Request struct {
	Question string              `json:"question"`
	UserName string              `json:"userName,omitempty"`
	History  []conversation.Turn `json:"history,omitempty"`
}

type Response struct {
	Answer     string                   `json:"answer"`
	ProductIDs []string                 `json:"productIds"`
	Products   []catalog.ProductSummary `json:"products"`
	History    []conversation.Turn      `json:"history"`
	Source     string                   `json:"source"`
}

type Handler struct {
	assistant Answerer
	products  ProductLookup
	now       func() time.Time
}

func NewHandler(a Answerer, p ProductLookup) *Handler {
	return &Handler{assistant: a, products: p, now: time.Now}
}

// Ask handles POST /chat. Only malformed input is rejected; every pipeline
// failure is already folded into the answer text by the assistant.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := validate(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "chat question received", "history_turns", len(req.History), "correlationId", correlationID)

	userTurn := conversation.Turn{Role: conversation.RoleUser, Text: req.Question, Timestamp: h.now().UTC()}
	answer := h.assistant.Answer(ctx, assistant.Request{
		Question: req.Question,
		History:  req.History,
		UserName: req.UserName,
	})
	assistantTurn := conversation.Turn{Role: conversation.RoleAssistant, Text: answer.Text, Timestamp: h.now().UTC()}

	history := make([]conversation.Turn, 0, len(req.History)+2)
	history = append(history, req.History...)
	history = append(history, userTurn, assistantTurn)

	ids := answer.ProductIDs
	if ids == nil {
		ids = []string{}
	}

	resp := Response{
		Answer:     answer.Text,
		ProductIDs: ids,
		Products:   h.hydrate(ctx, ids),
		History:    history,
		Source:     answer.Source,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// hydrate returns summaries in the order of ids, dropping ids the catalog no
// longer knows. Lookup failures yield an empty list.
func (h *Handler) hydrate(ctx context.Context, ids []string) []catalog.ProductSummary {
	out := []catalog.ProductSummary{}
	if len(ids) == 0 || h.products == nil {
		return out
	}
	summaries, err := h.products.GetProductSummaries(ctx, ids)
	if err != nil {
		slog.WarnContext(ctx, "failed to load product summaries", "error", err, "ids", ids)
		return out
	}
	byID := make(map[string]catalog.ProductSummary, len(summaries))
	for _, s := range summaries {
		byID[s.ID] = s
	}
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// validate normalizes req in place. History is cut to its latest
// MaxHistoryTurns turns, so a client resending every returned history keeps
// being served.
func validate(req *Request) error {
	req.Question = strings.TrimSpace(req.Question)
	req.UserName = strings.TrimSpace(req.UserName)
	req.History = conversation.Recent(req.History, MaxHistoryTurns)
	switch {
	case req.Question == "":
		return errors.New("question is required")
	case utf8.RuneCountInString(req.Question) > MaxQuestionChars:
		return errors.New("question is too long")
	case !conversation.Valid(req.History):
		return errors.New("history turns need a role of user or assistant and non-empty text")
	}
	return nil
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
