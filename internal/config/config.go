package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

// MaxIndexBatchSize is the largest batch the vector index accepts per upsert or delete call.
const MaxIndexBatchSize = 1000

const (
	VectorBackendWeaviate = "weaviate"
	VectorBackendChromem  = "chromem"

	DocumentStorePostgres = "postgres"
	DocumentStoreFS       = "fs"

	CatalogSourcePostgres = "postgres"
	CatalogSourceCSV      = "csv"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"mercora"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"mercora"`

	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"weaviate"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	ChromemPath    string `envconfig:"CHROMEM_PATH"`

	DocumentStore string `envconfig:"DOCUMENT_STORE" default:"postgres"`
	DocumentDir   string `envconfig:"DOCUMENT_DIR" default:"data/documents"`

	CatalogSource      string `envconfig:"CATALOG_SOURCE" default:"postgres"`
	CatalogProductsCSV string `envconfig:"CATALOG_PRODUCTS_CSV" default:"products.csv"`
	CatalogArticlesCSV string `envconfig:"CATALOG_ARTICLES_CSV"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	// Models. EmbeddingModel is read in exactly one place (app wiring) so index
	// and query time always share it.
	GeminiAPIKey     string  `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel   string  `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	ChatModel        string  `envconfig:"CHAT_MODEL" default:"gemini-2.0-flash"`
	ChatTemperature  float32 `envconfig:"CHAT_TEMPERATURE" default:"0.2"`
	ChatMaxTokens    int32   `envconfig:"CHAT_MAX_TOKENS" default:"1024"`
	EmbedRatePerSec  float64 `envconfig:"EMBED_RATE_PER_SEC" default:"10"`
	EmbedTimeoutSecs int     `envconfig:"EMBED_TIMEOUT_SECONDS" default:"60"`

	// Indexing
	IndexBatchSize   int `envconfig:"INDEX_BATCH_SIZE" default:"1000"`
	IndexConcurrency int `envconfig:"INDEX_CONCURRENCY" default:"4"`
	SummaryChars     int `envconfig:"SUMMARY_CHARS" default:"1000"`

	ReindexOnStartup      bool `envconfig:"REINDEX_ON_STARTUP" default:"false"`
	ReindexTimeoutMinutes int  `envconfig:"REINDEX_TIMEOUT_MINUTES" default:"10"`

	// Retrieval
	RetrievalTopK   int `envconfig:"RETRIEVAL_TOP_K" default:"5"`
	ContextMaxChars int `envconfig:"CONTEXT_MAX_CHARS" default:"6000"`
	HistoryTurns    int `envconfig:"HISTORY_TURNS" default:"6"`

	// Server
	ServerPort    int    `envconfig:"SERVER_PORT" default:"8081"`
	AdminToken    string `envconfig:"ADMIN_TOKEN"`
	QueryLogPath  string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"json"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// UsesDatabase reports whether any configured store lives in Postgres.
// Without one, settings and run history are kept in memory.
func (c *Config) UsesDatabase() bool {
	return c.CatalogSource == CatalogSourcePostgres || c.DocumentStore == DocumentStorePostgres
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: EMBEDDING_MODEL", ErrMissingRequired)
	}

	switch c.VectorBackend {
	case VectorBackendWeaviate, VectorBackendChromem:
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND=%q", ErrInvalidValue, c.VectorBackend)
	}
	switch c.DocumentStore {
	case DocumentStorePostgres, DocumentStoreFS:
	default:
		return fmt.Errorf("%w: DOCUMENT_STORE=%q", ErrInvalidValue, c.DocumentStore)
	}
	switch c.CatalogSource {
	case CatalogSourcePostgres, CatalogSourceCSV:
	default:
		return fmt.Errorf("%w: CATALOG_SOURCE=%q", ErrInvalidValue, c.CatalogSource)
	}

	if c.IndexBatchSize < 1 || c.IndexBatchSize > MaxIndexBatchSize {
		return fmt.Errorf("%w: INDEX_BATCH_SIZE must be between 1 and %d", ErrInvalidValue, MaxIndexBatchSize)
	}
	if c.IndexConcurrency < 1 {
		return fmt.Errorf("%w: INDEX_CONCURRENCY must be positive", ErrInvalidValue)
	}
	if c.RetrievalTopK < 1 {
		return fmt.Errorf("%w: RETRIEVAL_TOP_K must be positive", ErrInvalidValue)
	}
	if c.SummaryChars < 1 {
		return fmt.Errorf("%w: SUMMARY_CHARS must be positive", ErrInvalidValue)
	}
	return nil
}
