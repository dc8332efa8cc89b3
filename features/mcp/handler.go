// Package mcp exposes catalog retrieval to agents over the Model Context
// Protocol (JSON-RPC 2.0, plain POST or SSE sessions).
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercora/backend/internal/catalog"
	"mercora/backend/internal/docstore"
	"mercora/backend/internal/document"
	"mercora/backend/internal/middleware"
	"mercora/backend/internal/retrieval"
)

const (
	ToolSearch        = "catalog_search"
	ToolListDocuments = "catalog_list_documents"
	ToolReadDocument  = "catalog_read_document"

	maxBodyBytes = 1 << 20
)

type Retriever interface {
	Retrieve(ctx context.Context, question string) *retrieval.ContextBlock
}

type DocumentReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

type Handler struct {
	retriever    Retriever
	docs         DocumentReader
	sessions     map[string]chan string // sessionId -> message channel (serialized JSON-RPC response)
	sessionsLock sync.RWMutex
}

func NewHandler(r Retriever, d DocumentReader) *Handler {
	return &Handler{
		retriever: r,
		docs:      d,
		sessions:  make(map[string]chan string),
	}
}

// JSON-RPC Request types
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type SearchArgs struct {
	Query string `json:"query"`
}

type ListDocumentsArgs struct {
	SourceType string `json:"source_type,omitempty"`
}

type ReadDocumentArgs struct {
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// JSON-RPC Response
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

var sourceTypeSchema = map[string]interface{}{
	"type":        "string",
	"enum":        []string{string(catalog.SourceTypeProduct), string(catalog.SourceTypeArticle)},
	"description": "Catalog record type",
}

var tools = []Tool{
	{
		Name: ToolSearch,
		Description: `Finds the catalog products and articles most relevant to a shopper question.
Returns each match with its type, source id, similarity score and summary.

USAGE EXAMPLE:
catalog_search(query="warm jacket for winter hiking")`,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]string{
					"type":        "string",
					"description": "The shopper question",
				},
			},
			"required": []string{"query"},
		},
	},
	{
		Name:        ToolListDocuments,
		Description: `Lists the keys of rendered catalog documents, optionally for one record type.`,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"source_type": sourceTypeSchema,
			},
		},
	},
	{
		Name: ToolReadDocument,
		Description: `Returns the full rendered markdown for one product or article. Use it when a
search summary is too short to answer from.

USAGE EXAMPLE:
catalog_read_document(source_type="product", source_id="p-100")`,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"source_type": sourceTypeSchema,
				"source_id": map[string]string{
					"type":        "string",
					"description": "The catalog id of the record",
				},
			},
			"required": []string{"source_type", "source_id"},
		},
	},
}

// processRequest processes the JSON-RPC request and returns a response.
// Returns nil if no response should be sent (e.g. for notifications).
func (h *Handler) processRequest(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
				"serverInfo": map[string]interface{}{
					"name":    "mercora-catalog",
					"version": "1.0.0",
				},
			},
		}
	case "notifications/initialized":
		// Notifications must not generate a response
		return nil
	case "tools/list":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ListToolsResult{Tools: tools}}
	case "tools/call":
		var params CallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			slog.WarnContext(ctx, "invalid params structure", "error", err)
			return errorResponse(req.ID, ErrInvalidParams, "Invalid params")
		}
		return h.callTool(ctx, req.ID, params)
	}

	slog.WarnContext(ctx, "unknown jsonrpc method", "method", req.Method)
	return errorResponse(req.ID, ErrMethodNotFound, "Method not found")
}

func (h *Handler) callTool(ctx context.Context, id interface{}, params CallParams) *JSONRPCResponse {
	var (
		text string
		resp *JSONRPCResponse
	)
	switch params.Name {
	case ToolSearch:
		text, resp = h.search(ctx, id, params.Arguments)
	case ToolListDocuments:
		text, resp = h.listDocuments(ctx, id, params.Arguments)
	case ToolReadDocument:
		text, resp = h.readDocument(ctx, id, params.Arguments)
	default:
		slog.WarnContext(ctx, "tool not found", "tool", params.Name)
		return errorResponse(id, ErrMethodNotFound, "Method not found: "+params.Name)
	}
	if resp != nil {
		return resp
	}

	slog.InfoContext(ctx, "tool execution completed", "tool", params.Name)
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  ToolResult{Content: []ToolContent{{Type: "text", Text: text}}},
	}
}

func (h *Handler) search(ctx context.Context, id interface{}, raw json.RawMessage) (string, *JSONRPCResponse) {
	var args SearchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", errorResponse(id, ErrInvalidParams, "Invalid search arguments")
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", errorResponse(id, ErrInvalidParams, "Query is required")
	}

	block := h.retriever.Retrieve(ctx, args.Query)
	if block.Degraded {
		return "", &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      id,
			Result: ToolResult{
				Content: []ToolContent{{Type: "text", Text: "Catalog search is temporarily unavailable."}},
				IsError: true,
			},
		}
	}
	if !block.Grounded() {
		return "No results found.", nil
	}

	var b strings.Builder
	for i, it := range block.Items {
		fmt.Fprintf(&b, "Result %d (Score: %.2f):\n", i+1, it.Score)
		if it.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", it.Title)
		}
		fmt.Fprintf(&b, "Type: %s\nSourceID: %s\n", it.SourceType, it.SourceID)
		fmt.Fprintf(&b, "Summary:\n%s\n\n---\n", it.Summary)
	}
	fmt.Fprintf(&b, "\nUse %s(source_type=\"...\", source_id=\"...\") to read a full document.\n", ToolReadDocument)
	return b.String(), nil
}

func (h *Handler) listDocuments(ctx context.Context, id interface{}, raw json.RawMessage) (string, *JSONRPCResponse) {
	var args ListDocumentsArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", errorResponse(id, ErrInvalidParams, "Invalid arguments")
		}
	}

	prefixes := document.ManagedPrefixes()
	if args.SourceType != "" {
		t, ok := parseSourceType(args.SourceType)
		if !ok {
			return "", errorResponse(id, ErrInvalidParams, "Unknown source_type: "+args.SourceType)
		}
		prefixes = []string{document.Prefix(t)}
	}

	var keys []string
	for _, p := range prefixes {
		found, err := h.docs.List(ctx, p)
		if err != nil {
			slog.ErrorContext(ctx, "failed to list documents", "error", err, "prefix", p)
			return "", errorResponse(id, ErrInternal, "Failed to list documents")
		}
		keys = append(keys, found...)
	}
	if len(keys) == 0 {
		return "No documents found.", nil
	}
	return strings.Join(keys, "\n"), nil
}

func (h *Handler) readDocument(ctx context.Context, id interface{}, raw json.RawMessage) (string, *JSONRPCResponse) {
	var args ReadDocumentArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", errorResponse(id, ErrInvalidParams, "Invalid arguments")
	}
	t, ok := parseSourceType(args.SourceType)
	if !ok || args.SourceID == "" {
		return "", errorResponse(id, ErrInvalidParams, "source_type and source_id are required")
	}

	body, err := h.docs.Get(ctx, document.Key(t, args.SourceID))
	if errors.Is(err, docstore.ErrNotFound) {
		return "", &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      id,
			Result: ToolResult{
				Content: []ToolContent{{Type: "text", Text: "Document not found. It may not have been indexed yet."}},
				IsError: true,
			},
		}
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to read document", "error", err, "source_id", args.SourceID)
		return "", errorResponse(id, ErrInternal, "Failed to read document")
	}
	return string(body), nil
}

func parseSourceType(v string) (catalog.SourceType, bool) {
	switch catalog.SourceType(v) {
	case catalog.SourceTypeProduct, catalog.SourceTypeArticle:
		return catalog.SourceType(v), true
	}
	return "", false
}

func errorResponse(id interface{}, code int, message string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeJSON(w, errorResponse(nil, ErrParse, "Parse error"))
		return
	}

	resp := h.processRequest(r.Context(), req)
	if resp == nil {
		// Notification, just return OK
		w.WriteHeader(http.StatusOK)
		return
	}
	h.writeJSON(w, resp)
}

// HandleSSE establishes the SSE connection and manages the session
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeHTTPError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Streaming unsupported", middleware.GetCorrelationID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sessionID := uuid.New().String()
	msgChan := make(chan string, 100)

	h.sessionsLock.Lock()
	h.sessions[sessionID] = msgChan
	h.sessionsLock.Unlock()

	defer func() {
		h.sessionsLock.Lock()
		delete(h.sessions, sessionID)
		h.sessionsLock.Unlock()
		close(msgChan)
		slog.Info("sse session ended", "session_id", sessionID)
	}()

	slog.Info("sse session started", "session_id", sessionID)

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s/mcp/messages?sessionId=%s", scheme, r.Host, sessionID)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", html.EscapeString(endpoint))
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgChan:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			// Send keep-alive comment to prevent timeouts
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// HandleMessage accepts POST messages associated with a session
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		h.writeHTTPError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Missing sessionId", correlationID)
		return
	}

	h.sessionsLock.RLock()
	_, exists := h.sessions[sessionID]
	h.sessionsLock.RUnlock()
	if !exists {
		slog.Warn("session not found", "session_id", sessionID, "correlation_id", correlationID)
		h.writeHTTPError(w, http.StatusNotFound, "NOT_FOUND", "Session not found", correlationID)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeHTTPError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON", correlationID)
		return
	}

	// Accept now; the response is delivered over the SSE stream.
	w.WriteHeader(http.StatusAccepted)

	bgCtx := context.WithoutCancel(r.Context())
	go func() {
		resp := h.processRequest(bgCtx, req)
		if resp == nil {
			return
		}
		respBytes, err := json.Marshal(resp)
		if err != nil {
			slog.Error("failed to marshal response", "error", err, "correlation_id", correlationID)
			return
		}
		h.deliver(sessionID, string(respBytes))
	}()
}

// deliver queues msg on a live session. HandleSSE removes the session under
// the write lock before closing its channel, so a send under the read lock
// never hits a closed channel.
func (h *Handler) deliver(sessionID, msg string) {
	h.sessionsLock.RLock()
	defer h.sessionsLock.RUnlock()

	msgChan, ok := h.sessions[sessionID]
	if !ok {
		slog.Warn("session closed before response was delivered", "session_id", sessionID)
		return
	}
	select {
	case msgChan <- msg:
	default:
		slog.Warn("session channel full, dropping message", "session_id", sessionID)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, resp *JSONRPCResponse) {
	// JSON-RPC errors travel in the body with a 200 status.
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeHTTPError(w http.ResponseWriter, status int, code string, message string, correlationID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"correlationId": correlationID,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
