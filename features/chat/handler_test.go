package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"mercora/backend/features/chat"
	"mercora/backend/internal/assistant"
	"mercora/backend/internal/catalog"
	"mercora/backend/internal/conversation"
)

type MockAnswerer struct{ mock.Mock }

func (m *MockAnswerer) Answer(ctx context.Context, req assistant.Request) *assistant.Answer {
	args := m.Called(ctx, req)
	return args.Get(0).(*assistant.Answer)
}

type MockProducts struct{ mock.Mock }

func (m *MockProducts) GetProductSummaries(ctx context.Context, ids []string) ([]catalog.ProductSummary, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.ProductSummary), args.Error(1)
}

func post(h *chat.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Ask(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) chat.Response {
	t.Helper()
	var resp chat.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAsk_GroundedAnswer(t *testing.T) {
	a := new(MockAnswerer)
	p := new(MockProducts)
	h := chat.NewHandler(a, p)

	a.On("Answer", mock.Anything, mock.MatchedBy(func(r assistant.Request) bool {
		return r.Question == "Which jacket is warmest?" && r.UserName == "Sam" && len(r.History) == 2
	})).Return(&assistant.Answer{
		Text:       "The Arctic Pulse Tool is rated to -30C.",
		ProductIDs: []string{"p2", "p1", "gone"},
		Source:     assistant.SourceModel,
	})
	p.On("GetProductSummaries", mock.Anything, []string{"p2", "p1", "gone"}).Return([]catalog.ProductSummary{
		{ID: "p1", Name: "Trail Shell"},
		{ID: "p2", Name: "Arctic Pulse Tool"},
	}, nil)

	body := `{"question":"  Which jacket is warmest? ","userName":"Sam","history":[
		{"role":"user","text":"hi","timestamp":"2026-01-01T00:00:00Z"},
		{"role":"assistant","text":"Hello Sam!","timestamp":"2026-01-01T00:00:01Z"}]}`
	w := post(h, body)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "The Arctic Pulse Tool is rated to -30C.", resp.Answer)
	assert.Equal(t, []string{"p2", "p1", "gone"}, resp.ProductIDs)
	require.Len(t, resp.Products, 2)
	assert.Equal(t, "p2", resp.Products[0].ID)
	assert.Equal(t, "p1", resp.Products[1].ID)

	require.Len(t, resp.History, 4)
	assert.Equal(t, "hi", resp.History[0].Text)
	assert.Equal(t, conversation.RoleUser, resp.History[2].Role)
	assert.Equal(t, "Which jacket is warmest?", resp.History[2].Text)
	assert.Equal(t, conversation.RoleAssistant, resp.History[3].Role)
	assert.Equal(t, resp.Answer, resp.History[3].Text)
	assert.WithinDuration(t, time.Now(), resp.History[3].Timestamp, time.Minute)
}

func TestAsk_NoProductsSkipsLookup(t *testing.T) {
	a := new(MockAnswerer)
	p := new(MockProducts)
	h := chat.NewHandler(a, p)

	a.On("Answer", mock.Anything, mock.Anything).Return(&assistant.Answer{Text: "Hello!", Source: assistant.SourceGreeting})

	w := post(h, `{"question":"hello"}`)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Empty(t, resp.ProductIDs)
	assert.NotNil(t, resp.ProductIDs)
	assert.Empty(t, resp.Products)
	assert.Len(t, resp.History, 2)
	p.AssertNotCalled(t, "GetProductSummaries", mock.Anything, mock.Anything)
}

func TestAsk_ProductLookupFailureStillAnswers(t *testing.T) {
	a := new(MockAnswerer)
	p := new(MockProducts)
	h := chat.NewHandler(a, p)

	a.On("Answer", mock.Anything, mock.Anything).Return(&assistant.Answer{Text: "Try the Trail Shell.", ProductIDs: []string{"p1"}})
	p.On("GetProductSummaries", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	w := post(h, `{"question":"rain jacket?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, []string{"p1"}, resp.ProductIDs)
	assert.Empty(t, resp.Products)
}

func TestAsk_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"question":`},
		{"missing question", `{}`},
		{"blank question", `{"question":"   "}`},
		{"too long", `{"question":"` + strings.Repeat("a", chat.MaxQuestionChars+1) + `"}`},
		{"unknown role", `{"question":"hi","history":[{"role":"system","text":"x"}]}`},
		{"empty turn", `{"question":"hi","history":[{"role":"user","text":""}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := new(MockAnswerer)
			h := chat.NewHandler(a, new(MockProducts))

			w := post(h, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
			a.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
		})
	}
}

func TestAsk_ResentHistoryStaysAccepted(t *testing.T) {
	a := new(MockAnswerer)
	a.On("Answer", mock.Anything, mock.MatchedBy(func(r assistant.Request) bool {
		return len(r.History) <= chat.MaxHistoryTurns
	})).Return(&assistant.Answer{Text: "Happy to help.", Source: assistant.SourceModel})
	h := chat.NewHandler(a, new(MockProducts))

	var history []conversation.Turn
	for i := 0; i < chat.MaxHistoryTurns; i++ {
		body, err := json.Marshal(chat.Request{Question: "Anything new in tents?", History: history})
		require.NoError(t, err)

		w := post(h, string(body))
		require.Equal(t, http.StatusOK, w.Code, "exchange %d: %s", i+1, w.Body.String())

		history = decode(t, w).History
		require.LessOrEqual(t, len(history), chat.MaxHistoryTurns+2)
	}

	assert.Len(t, history, chat.MaxHistoryTurns+2)
	assert.Equal(t, conversation.RoleUser, history[0].Role)
	assert.Equal(t, "Happy to help.", history[len(history)-1].Text)
}
