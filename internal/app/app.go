package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"mercora/backend/features/chat"
	"mercora/backend/features/mcp"
	"mercora/backend/features/reindex"
	"mercora/backend/features/stats"
	"mercora/backend/internal/adapter/gemini"
	"mercora/backend/internal/assistant"
	"mercora/backend/internal/catalog"
	"mercora/backend/internal/config"
	"mercora/backend/internal/docstore"
	"mercora/backend/internal/document"
	"mercora/backend/internal/indexer"
	"mercora/backend/internal/middleware"
	"mercora/backend/internal/retrieval"
	"mercora/backend/internal/settings"
	"mercora/backend/internal/vector"
	"mercora/backend/internal/worker"
)

// Embedder is shared by indexing and retrieval so both use one model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type App struct {
	Handler         http.Handler
	Settings        *settings.Service
	Reindex         *reindex.Service
	Assistant       *assistant.Assistant
	ReindexConsumer *worker.ReindexConsumer

	port    int
	closers []io.Closer
}

type options struct {
	embedder    Embedder
	completer   assistant.Completer
	catalog     catalog.Repository
	docs        docstore.Store
	queryLogger *retrieval.QueryLogger
}

type Option func(*options)

func WithEmbedder(e Embedder) Option             { return func(o *options) { o.embedder = e } }
func WithCompleter(c assistant.Completer) Option { return func(o *options) { o.completer = c } }
func WithCatalog(c catalog.Repository) Option    { return func(o *options) { o.catalog = c } }
func WithDocumentStore(d docstore.Store) Option  { return func(o *options) { o.docs = d } }
func WithQueryLogger(l *retrieval.QueryLogger) Option {
	return func(o *options) { o.queryLogger = l }
}

// New wires every feature. db may be nil when no store lives in Postgres;
// pub may be nil when NSQ is not configured.
func New(cfg *config.Config, db *sql.DB, idx vector.Index, pub reindex.EventPublisher, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	a := &App{port: cfg.ServerPort}

	// Feature: Settings
	var settingsRepo settings.Repository = settings.NewMemoryRepo()
	if db != nil {
		settingsRepo = settings.NewPostgresRepo(db)
	}
	settingsService := settings.NewService(settingsRepo, settings.Defaults{
		GeminiAPIKey: cfg.GeminiAPIKey,
		SearchTopK:   cfg.RetrievalTopK,
		HistoryTurns: cfg.HistoryTurns,
	})
	settingsHandler := settings.NewHandler(settingsService)
	a.Settings = settingsService

	// Stores
	catalogRepo, err := newCatalog(cfg, db, o.catalog)
	if err != nil {
		return nil, err
	}
	docs, err := newDocumentStore(cfg, db, o.docs)
	if err != nil {
		return nil, err
	}

	// Adapters: Dynamic
	embedder := o.embedder
	if embedder == nil {
		e := gemini.NewDynamicEmbedder(settingsService, gemini.EmbedderConfig{
			Model:      cfg.EmbeddingModel,
			RatePerSec: cfg.EmbedRatePerSec,
			Timeout:    time.Duration(cfg.EmbedTimeoutSecs) * time.Second,
		})
		a.closers = append(a.closers, e)
		embedder = e
	}
	completer := o.completer
	if completer == nil {
		c := gemini.NewDynamicCompleter(settingsService, gemini.CompleterConfig{
			Model:       cfg.ChatModel,
			Temperature: cfg.ChatTemperature,
			MaxTokens:   cfg.ChatMaxTokens,
		})
		a.closers = append(a.closers, c)
		completer = c
	}

	// Feature: Reindex
	orchestrator := indexer.New(catalogRepo, document.NewRenderer(cfg.SummaryChars), docs, embedder, idx, indexer.Config{
		BatchSize:   cfg.IndexBatchSize,
		Concurrency: cfg.IndexConcurrency,
	})
	var runRepo reindex.Repository = reindex.NewMemoryRepo(0)
	if db != nil {
		runRepo = reindex.NewPostgresRepo(db)
	}
	a.Reindex = reindex.NewService(orchestrator, runRepo, pub)
	reindexHandler := reindex.NewHandler(a.Reindex)
	a.ReindexConsumer = worker.NewReindexConsumer(a.Reindex, time.Duration(cfg.ReindexTimeoutMinutes)*time.Minute)

	// Feature: Stats
	statsHandler := stats.NewHandler(catalogRepo, runRepo, idx)

	// Feature: Retrieval & Chat
	queryLogger := o.queryLogger
	if queryLogger == nil {
		queryLogger, err = retrieval.NewFileQueryLogger(cfg.QueryLogPath)
		if err != nil {
			slog.Warn("failed to create query logger, falling back to stdout", "error", err)
			queryLogger = retrieval.NewQueryLogger(os.Stdout)
		}
		a.closers = append(a.closers, queryLogger)
	}
	retrievalService := retrieval.NewService(embedder, idx, settingsService, queryLogger, retrieval.Config{
		TopK:            cfg.RetrievalTopK,
		MaxContextChars: cfg.ContextMaxChars,
	})
	a.Assistant = assistant.New(retrievalService, completer, settingsService, assistant.Config{
		HistoryTurns: cfg.HistoryTurns,
		FlavorChance: assistant.DefaultFlavorChance,
	})
	chatHandler := chat.NewHandler(a.Assistant, catalogRepo)

	// Feature: MCP tools over the same retrieval path
	mcpHandler := mcp.NewHandler(retrievalService, docs)

	// Routes
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(middleware.AdminToken(cfg.AdminToken, middleware.CORS(h)))
	}
	public := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(middleware.CORS(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /chat", public(chatHandler.Ask))

	mux.Handle("POST /mcp", middleware.CorrelationID(mcpHandler))
	mux.Handle("GET /mcp/sse", public(mcpHandler.HandleSSE))
	mux.Handle("POST /mcp/messages", public(mcpHandler.HandleMessage))

	mux.Handle("POST /admin/reindex", admin(reindexHandler.Trigger))
	mux.Handle("GET /admin/reindex/runs", admin(reindexHandler.Runs))
	mux.Handle("GET /admin/reindex/runs/latest", admin(reindexHandler.LatestRun))
	mux.Handle("GET /admin/settings", admin(settingsHandler.GetSettings))
	mux.Handle("PUT /admin/settings", admin(settingsHandler.UpdateSettings))
	mux.Handle("GET /admin/stats", admin(statsHandler.GetStats))

	// Preflight requests carry no credentials.
	mux.Handle("OPTIONS /", middleware.CORS(func(http.ResponseWriter, *http.Request) {}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	a.Handler = mux
	return a, nil
}

func newCatalog(cfg *config.Config, db *sql.DB, override catalog.Repository) (catalog.Repository, error) {
	if override != nil {
		return override, nil
	}
	if cfg.CatalogSource == config.CatalogSourceCSV {
		return catalog.NewCSVSource(cfg.CatalogProductsCSV, cfg.CatalogArticlesCSV), nil
	}
	if db == nil {
		return nil, fmt.Errorf("%w: CATALOG_SOURCE=postgres needs a database", config.ErrInvalidValue)
	}
	return catalog.NewPostgresRepo(db), nil
}

func newDocumentStore(cfg *config.Config, db *sql.DB, override docstore.Store) (docstore.Store, error) {
	if override != nil {
		return override, nil
	}
	if cfg.DocumentStore == config.DocumentStoreFS {
		return docstore.NewFileStore(cfg.DocumentDir)
	}
	if db == nil {
		return nil, fmt.Errorf("%w: DOCUMENT_STORE=postgres needs a database", config.ErrInvalidValue)
	}
	return docstore.NewPostgresStore(db), nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases model clients created by New.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close client", "error", err)
		}
	}
}
