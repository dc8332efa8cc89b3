package reindex_test

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"mercora/backend/features/reindex"
)

func TestHandler_Trigger_Sync(t *testing.T) {
	orch := new(MockReindexer)
	orch.On("ReindexAll", mock.Anything).Return(sampleReport())
	h := reindex.NewHandler(reindex.NewService(orch, reindex.NewMemoryRepo(5), nil))

	req := httptest.NewRequest(http.MethodPost, "/admin/reindex", nil)
	w := httptest.NewRecorder()
	h.Trigger(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotContains(t, resp, "data")
	assert.Equal(t, "run-1", resp["runId"])
	assert.Equal(t, float64(2), resp["totalIndexed"])
	for _, field := range []string{"success", "totalErrors", "executionTimeMs", "details"} {
		assert.Contains(t, resp, field)
	}
}

func TestHandler_Trigger_Conflict(t *testing.T) {
	orch := &MockReindexer{started: make(chan struct{}), release: make(chan struct{})}
	orch.On("ReindexAll", mock.Anything).Return(sampleReport())
	svc := reindex.NewService(orch, reindex.NewMemoryRepo(5), nil)
	h := reindex.NewHandler(svc)

	done := make(chan struct{})
	go func() {
		h.Trigger(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/admin/reindex", nil))
		close(done)
	}()
	<-orch.started

	w := httptest.NewRecorder()
	h.Trigger(w, httptest.NewRequest(http.MethodPost, "/admin/reindex", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "RUN_IN_PROGRESS")

	close(orch.release)
	<-done
}

func TestHandler_Trigger_Async(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	h := reindex.NewHandler(reindex.NewService(new(MockReindexer), new(MockRepo), pub))

	w := httptest.NewRecorder()
	h.Trigger(w, httptest.NewRequest(http.MethodPost, "/admin/reindex?async=true", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	pub.AssertExpectations(t)
}

func TestHandler_Trigger_AsyncWithoutQueue(t *testing.T) {
	h := reindex.NewHandler(reindex.NewService(new(MockReindexer), new(MockRepo), nil))

	w := httptest.NewRecorder()
	h.Trigger(w, httptest.NewRequest(http.MethodPost, "/admin/reindex?async=1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "QUEUE_UNAVAILABLE")
}

func TestHandler_Runs(t *testing.T) {
	repo := new(MockRepo)
	repo.On("List", mock.Anything, 5).Return([]reindex.Run{{ID: "run-1"}, {ID: "run-0"}}, nil)
	h := reindex.NewHandler(reindex.NewService(new(MockReindexer), repo, nil))

	w := httptest.NewRecorder()
	h.Runs(w, httptest.NewRequest(http.MethodGet, "/admin/reindex/runs?limit=5", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []reindex.Run `json:"data"`
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Meta.Count)
	assert.Equal(t, "run-1", resp.Data[0].ID)
}

func TestHandler_Runs_Errors(t *testing.T) {
	repo := new(MockRepo)
	repo.On("List", mock.Anything, 20).Return(nil, errors.New("db down"))
	h := reindex.NewHandler(reindex.NewService(new(MockReindexer), repo, nil))

	w := httptest.NewRecorder()
	h.Runs(w, httptest.NewRequest(http.MethodGet, "/admin/reindex/runs?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.Runs(w, httptest.NewRequest(http.MethodGet, "/admin/reindex/runs", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandler_LatestRun_NotFound(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Latest", mock.Anything).Return(nil, sql.ErrNoRows)
	h := reindex.NewHandler(reindex.NewService(new(MockReindexer), repo, nil))

	w := httptest.NewRecorder()
	h.LatestRun(w, httptest.NewRequest(http.MethodGet, "/admin/reindex/runs/latest", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
