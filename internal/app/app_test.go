package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercora/backend/internal/adapter/chromem"
	"mercora/backend/internal/config"
	"mercora/backend/internal/conversation"
	"mercora/backend/internal/retrieval"
	"mercora/backend/internal/testutils"
)

const productsCSV = `id,name,slug,brand,price,sale_price,on_sale,categories,tags,short_description,long_description,attributes
p-100,Summit Dome Tent,summit-dome-tent,Northline,24900,19900,1,"Tents","camping,waterproof",Waterproof two person tent,"A waterproof dome tent with aluminum poles for alpine camping.","capacity:2,weight:2.1kg"
p-200,Glacier Down Parka,glacier-down-parka,Northline,32000,,0,"Jackets","insulated,winter",Warm down parka,"An insulated down parka rated for deep winter cold.","fill:800"
`

type storeCompleter struct{}

func (storeCompleter) Complete(_ context.Context, systemPrompt string, _ []conversation.Turn) (string, error) {
	_, ctxText, _ := strings.Cut(systemPrompt, "STORE CONTEXT:\n")
	return "From our store: " + ctxText, nil
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	productsPath := filepath.Join(dir, "products.csv")
	require.NoError(t, os.WriteFile(productsPath, []byte(productsCSV), 0o600))

	cfg := &config.Config{
		CatalogSource:      config.CatalogSourceCSV,
		CatalogProductsCSV: productsPath,
		DocumentStore:      config.DocumentStoreFS,
		DocumentDir:        filepath.Join(dir, "documents"),
		VectorBackend:      config.VectorBackendChromem,
		EmbeddingModel:     "hash-embedding",
		IndexBatchSize:     100,
		IndexConcurrency:   2,
		SummaryChars:       400,
		RetrievalTopK:      2,
		ContextMaxChars:    4000,
		HistoryTurns:       4,
		AdminToken:         "secret",
		ServerPort:         0,
	}

	idx, err := chromem.Open("", 1)
	require.NoError(t, err)

	a, err := New(cfg, nil, idx, nil,
		WithEmbedder(testutils.NewHashEmbedder(64)),
		WithCompleter(storeCompleter{}),
		WithQueryLogger(retrieval.NewQueryLogger(io.Discard)),
	)
	require.NoError(t, err)
	return a
}

func do(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNew_Health(t *testing.T) {
	a := newTestApp(t)

	w := do(t, a.Handler, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, a.ReindexConsumer)
}

func TestNew_AdminRoutesNeedToken(t *testing.T) {
	a := newTestApp(t)

	for _, path := range []string{"/admin/stats", "/admin/settings", "/admin/reindex/runs"} {
		w := do(t, a.Handler, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)

		w = do(t, a.Handler, http.MethodGet, path, "wrong", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestNew_Preflight(t *testing.T) {
	a := newTestApp(t)

	w := do(t, a.Handler, http.MethodOptions, "/admin/reindex", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNew_ReindexThenChat(t *testing.T) {
	a := newTestApp(t)

	// Before any rebuild the assistant has nothing to ground on.
	w := do(t, a.Handler, http.MethodPost, "/chat", "", map[string]string{"question": "Do you sell a waterproof tent?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), retrieval.NoContextSentinel)

	w = do(t, a.Handler, http.MethodPost, "/admin/reindex", "secret", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reindexResp struct {
		Success      bool `json:"success"`
		TotalIndexed int  `json:"totalIndexed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reindexResp))
	assert.True(t, reindexResp.Success)
	assert.Equal(t, 2, reindexResp.TotalIndexed)

	w = do(t, a.Handler, http.MethodPost, "/chat", "", map[string]string{"question": "Do you sell a waterproof tent?"})
	require.Equal(t, http.StatusOK, w.Code)
	var chatResp struct {
		Answer     string   `json:"answer"`
		ProductIDs []string `json:"productIds"`
		Products   []struct {
			ID    string  `json:"id"`
			Price float64 `json:"price"`
		} `json:"products"`
		History []conversation.Turn `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &chatResp))
	assert.Contains(t, chatResp.Answer, "Summit Dome Tent")
	assert.Contains(t, chatResp.ProductIDs, "p-100")
	require.NotEmpty(t, chatResp.Products)
	for _, p := range chatResp.Products {
		if p.ID == "p-100" {
			assert.InDelta(t, 199.00, p.Price, 0.001)
		}
	}
	assert.Len(t, chatResp.History, 2)

	w = do(t, a.Handler, http.MethodGet, "/admin/stats", "secret", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var statsResp struct {
		Data struct {
			Products    int `json:"products"`
			Documents   int `json:"documents"`
			ReindexRuns int `json:"reindexRuns"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statsResp))
	assert.Equal(t, 2, statsResp.Data.Products)
	assert.Equal(t, 2, statsResp.Data.Documents)
	assert.Equal(t, 1, statsResp.Data.ReindexRuns)
}

func TestNew_GreetingSkipsPipeline(t *testing.T) {
	a := newTestApp(t)

	w := do(t, a.Handler, http.MethodPost, "/chat", "", map[string]string{"question": "hello", "userName": "Ada"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source":"greeting"`)
}

func TestNew_PostgresCatalogNeedsDatabase(t *testing.T) {
	cfg := &config.Config{CatalogSource: config.CatalogSourcePostgres, DocumentStore: config.DocumentStoreFS, DocumentDir: t.TempDir()}
	idx, err := chromem.Open("", 1)
	require.NoError(t, err)

	_, err = New(cfg, nil, idx, nil, WithEmbedder(testutils.NewHashEmbedder(8)), WithCompleter(storeCompleter{}))
	assert.ErrorIs(t, err, config.ErrInvalidValue)
}

func TestNew_WithDatabase(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := &config.Config{
		CatalogSource: config.CatalogSourcePostgres,
		DocumentStore: config.DocumentStorePostgres,
		ServerPort:    8081,
	}
	idx, err := chromem.Open("", 1)
	require.NoError(t, err)

	a, err := New(cfg, db, idx, nil, WithQueryLogger(retrieval.NewQueryLogger(io.Discard)))
	require.NoError(t, err)
	assert.NotNil(t, a.Handler)
	assert.NotNil(t, a.Settings)
	a.Close()
}

func TestNew_MCPReadsRenderedDocument(t *testing.T) {
	a := newTestApp(t)

	w := do(t, a.Handler, http.MethodPost, "/admin/reindex", "secret", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, a.Handler, http.MethodPost, "/mcp", "", map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      "catalog_read_document",
			"arguments": map[string]string{"source_type": "product", "source_id": "p-100"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Summit Dome Tent")
	assert.NotContains(t, w.Body.String(), `"isError":true`)
}
