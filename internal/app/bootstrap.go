package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"mercora/backend/features/reindex"
	"mercora/backend/internal/adapter/chromem"
	wstore "mercora/backend/internal/adapter/weaviate"
	"mercora/backend/internal/config"
	"mercora/backend/internal/vector"
)

type Dependencies struct {
	// DB is nil when no configured store lives in Postgres.
	DB          *sql.DB
	Index       vector.Index
	NSQProducer *nsq.Producer
}

// Publisher returns the producer as an event publisher, or nil when NSQ is not configured.
func (d *Dependencies) Publisher() reindex.EventPublisher {
	if d.NSQProducer == nil {
		return nil
	}
	return d.NSQProducer
}

func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	deps := &Dependencies{}

	// Database
	if cfg.UsesDatabase() {
		db, err := openDB(ctx, cfg, retryDelay)
		if err != nil {
			return nil, err
		}
		deps.DB = db

		if err := migrateUp(db, cfg.MigrationPath); err != nil {
			deps.Close()
			return nil, err
		}
	}

	// Vector index
	idx, err := openIndex(ctx, cfg, retryDelay)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Index = idx

	// NSQ Producer
	if cfg.NSQDHost != "" {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.NSQProducer = producer
		createTopics(cfg.NSQDHTTP)
	}

	return deps, nil
}

func openDB(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	err = withRetry(ctx, cfg.BootstrapRetryAttempts, retryDelay, func() error {
		if err := db.PingContext(ctx); err != nil {
			slog.Warn("failed to ping db, retrying...", "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

func migrateUp(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied successfully")
	return nil
}

func openIndex(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (vector.Index, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendChromem:
		idx, err := chromem.Open(cfg.ChromemPath, cfg.IndexConcurrency)
		if err != nil {
			return nil, fmt.Errorf("chromem index error: %w", err)
		}
		slog.Info("using embedded vector index", "path", cfg.ChromemPath)
		return idx, nil
	default:
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		if err := EnsureSchemaWithRetry(ctx, wstore.NewSchemaAdapter(client), cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		slog.Info("weaviate schema ensured")
		return wstore.NewIndex(client), nil
	}
}

// EnsureSchemaWithRetry creates or repairs the document class, retrying while Weaviate starts.
func EnsureSchemaWithRetry(ctx context.Context, client vector.SchemaClient, attempts int, delay time.Duration) error {
	return withRetry(ctx, attempts, delay, func() error {
		if err := vector.EnsureSchema(ctx, client); err != nil {
			slog.Warn("failed to ensure weaviate schema, retrying...", "error", err)
			return err
		}
		return nil
	})
}

// withRetry runs op up to attempts times with a constant delay between tries.
func withRetry(ctx context.Context, attempts int, delay time.Duration, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	return backoff.Retry(op, b)
}

func createTopics(nsqdHTTP string) {
	if nsqdHTTP == "" {
		return
	}
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicReindex)
		create(config.TopicReindexReport)
	}()
}
