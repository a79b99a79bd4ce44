// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Chunker     ChunkerConfig     `mapstructure:"chunker"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Documents   DocumentsConfig   `mapstructure:"documents"`
	API         APIConfig         `mapstructure:"api"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	VectorStore VectorStoreConfig `mapstructure:"vectorstore"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlerConfig governs fetching and the frontier.
type CrawlerConfig struct {
	UserAgent             string  `mapstructure:"user_agent"`
	RequestsPerSecond     float64 `mapstructure:"requests_per_second"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	BatchWidth            int     `mapstructure:"batch_width"`
	MaxPagesDefault       int     `mapstructure:"max_pages_default"`
	MaxPageBytes          int     `mapstructure:"max_page_bytes"`
	RespectRobots         bool    `mapstructure:"respect_robots"`
}

// ChunkerConfig sizes text chunks, in runes.
type ChunkerConfig struct {
	Size             int `mapstructure:"size"`
	Overlap          int `mapstructure:"overlap"`
	MinFragmentRunes int `mapstructure:"min_fragment_runes"`
}

// IngestConfig governs admission and pipeline batching.
type IngestConfig struct {
	MaxConcurrentTasks     int    `mapstructure:"max_concurrent_tasks"`
	PageBatchSize          int    `mapstructure:"page_batch_size"`
	EmbedBatchSize         int    `mapstructure:"embed_batch_size"`
	WorkerPoolSize         int    `mapstructure:"worker_pool_size"`
	CollectionPrefix       string `mapstructure:"collection_prefix"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// DocumentsConfig governs uploaded document ingestion. Chunk sizes are in
// runes and independent of the crawl chunker.
type DocumentsConfig struct {
	ChunkSize      int   `mapstructure:"chunk_size"`
	ChunkOverlap   int   `mapstructure:"chunk_overlap"`
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// APIConfig tunes the HTTP handlers.
type APIConfig struct {
	PollDebounceMs int `mapstructure:"poll_debounce_ms"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Host       string `mapstructure:"host"`
	Model      string `mapstructure:"model"`
	Token      string `mapstructure:"token"`
	Dimensions int    `mapstructure:"dimensions"`
}

// VectorStoreConfig selects and configures vector persistence.
type VectorStoreConfig struct {
	Backend  string `mapstructure:"backend"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEINGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("crawler.requests_per_second", 2.0)
	v.SetDefault("crawler.request_timeout_seconds", 10)
	v.SetDefault("crawler.batch_width", 5)
	v.SetDefault("crawler.max_pages_default", 0)
	v.SetDefault("crawler.max_page_bytes", 0)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("chunker.size", 64)
	v.SetDefault("chunker.overlap", 10)
	v.SetDefault("chunker.min_fragment_runes", 10)
	v.SetDefault("ingest.max_concurrent_tasks", 3)
	v.SetDefault("ingest.page_batch_size", 5)
	v.SetDefault("ingest.embed_batch_size", 50)
	v.SetDefault("ingest.worker_pool_size", 64)
	v.SetDefault("ingest.collection_prefix", "")
	v.SetDefault("ingest.shutdown_timeout_seconds", 30)
	v.SetDefault("documents.chunk_size", 1000)
	v.SetDefault("documents.chunk_overlap", 200)
	v.SetDefault("documents.max_upload_bytes", 10<<20)
	v.SetDefault("api.poll_debounce_ms", 2000)
	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.host", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.token", "")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("vectorstore.backend", "memory")
	v.SetDefault("vectorstore.dsn", "")
	v.SetDefault("vectorstore.table", "chunks")
	v.SetDefault("vectorstore.max_conns", 0)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.request_timeout_seconds must be > 0")
	}
	if c.Crawler.BatchWidth <= 0 {
		return fmt.Errorf("crawler.batch_width must be > 0")
	}
	if c.Crawler.MaxPagesDefault < 0 {
		return fmt.Errorf("crawler.max_pages_default must be >= 0")
	}
	if c.Chunker.Size <= 0 {
		return fmt.Errorf("chunker.size must be > 0")
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("chunker.overlap must be >= 0 and < chunker.size")
	}
	if c.Ingest.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("ingest.max_concurrent_tasks must be > 0")
	}
	if c.Ingest.PageBatchSize <= 0 || c.Ingest.EmbedBatchSize <= 0 {
		return fmt.Errorf("ingest batch sizes must be > 0")
	}
	if c.Ingest.WorkerPoolSize <= 0 {
		return fmt.Errorf("ingest.worker_pool_size must be > 0")
	}
	if c.Documents.ChunkSize <= 0 {
		return fmt.Errorf("documents.chunk_size must be > 0")
	}
	if c.Documents.ChunkOverlap < 0 || c.Documents.ChunkOverlap >= c.Documents.ChunkSize {
		return fmt.Errorf("documents.chunk_overlap must be >= 0 and < documents.chunk_size")
	}
	if c.Documents.MaxUploadBytes <= 0 {
		return fmt.Errorf("documents.max_upload_bytes must be > 0")
	}
	switch c.Embedding.Provider {
	case "hash":
	case "openai":
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model must be set for the openai provider")
		}
	default:
		return fmt.Errorf("embedding.provider must be hash or openai, got %q", c.Embedding.Provider)
	}
	switch c.VectorStore.Backend {
	case "memory":
	case "postgres":
		if c.VectorStore.DSN == "" {
			return fmt.Errorf("vectorstore.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("vectorstore.backend must be memory or postgres, got %q", c.VectorStore.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// RequestTimeout converts the per-fetch timeout to a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	if c.Ingest.ShutdownTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Ingest.ShutdownTimeoutSeconds) * time.Second
}

// PollDebounce is the window within which repeated polls reuse a snapshot.
func (c Config) PollDebounce() time.Duration {
	return time.Duration(c.API.PollDebounceMs) * time.Millisecond
}
