// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the serve and crawl commands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/siteingest/internal/chunker"
	"github.com/JakeFAU/siteingest/internal/clock/system"
	"github.com/JakeFAU/siteingest/internal/config"
	"github.com/JakeFAU/siteingest/internal/crawler"
	"github.com/JakeFAU/siteingest/internal/dispatcher"
	"github.com/JakeFAU/siteingest/internal/document"
	"github.com/JakeFAU/siteingest/internal/embedding"
	"github.com/JakeFAU/siteingest/internal/extract"
	collyfetcher "github.com/JakeFAU/siteingest/internal/fetcher/colly"
	"github.com/JakeFAU/siteingest/internal/hash/sha256"
	"github.com/JakeFAU/siteingest/internal/id/uuid"
	"github.com/JakeFAU/siteingest/internal/ingest"
	"github.com/JakeFAU/siteingest/internal/metrics"
	"github.com/JakeFAU/siteingest/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/siteingest/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/siteingest/internal/publisher/pubsub"
	"github.com/JakeFAU/siteingest/internal/storage/memory"
	"github.com/JakeFAU/siteingest/internal/storage/postgres"
	"github.com/JakeFAU/siteingest/internal/worker"
)

// localTopic names the event stream when no Pub/Sub topic is configured.
const localTopic = "task-events"

type publisher interface {
	crawler.Publisher
	Close() error
}

// App holds the shared, long-lived services. It is built once at startup.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    crawler.Clock
	idGen    crawler.IDGenerator
	progress *memory.ProgressStore
	vectors  crawler.VectorStore
	pg       *postgres.VectorStore
	pub      publisher
	worker   *worker.Worker
	service  *ingest.Service
	docs     *ingest.Documents
	checks   []func(context.Context) error
}

// Overrides replaces collaborators, mainly for tests. Nil fields keep the
// configured implementation.
type Overrides struct {
	Fetcher   crawler.Fetcher
	Embedder  crawler.Embedder
	Vectors   crawler.VectorStore
	Publisher crawler.Publisher
}

// New wires every component from cfg. It fails fast if a backend cannot be
// initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, overrides Overrides) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	logger.Info("initializing application services")

	clock := system.New()
	a := &App{
		cfg:      cfg,
		logger:   logger,
		clock:    clock,
		idGen:    uuid.NewUUIDGenerator(),
		progress: memory.NewProgressStore(clock),
	}

	fetcher := overrides.Fetcher
	if fetcher == nil {
		limiter := ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.Crawler.RequestsPerSecond})
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Crawler.UserAgent,
			RespectRobots: cfg.Crawler.RespectRobots,
			Timeout:       cfg.RequestTimeout(),
			MaxBodyBytes:  cfg.Crawler.MaxPageBytes,
		}, limiter, logger)
	}
	siteCrawler := crawler.New(fetcher, crawler.Config{BatchWidth: cfg.Crawler.BatchWidth}, logger)

	splitter, err := chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}
	docSplitter, err := chunker.New(cfg.Documents.ChunkSize, cfg.Documents.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("init document chunker: %w", err)
	}
	cleaner := extract.NewCleaner(cfg.Chunker.MinFragmentRunes, logger)

	embedder := overrides.Embedder
	if embedder == nil {
		embedder, err = embedding.New(embedding.Config{
			Provider:   cfg.Embedding.Provider,
			Host:       cfg.Embedding.Host,
			Model:      cfg.Embedding.Model,
			Token:      cfg.Embedding.Token,
			Dimensions: cfg.Embedding.Dimensions,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
	}

	if err := a.initVectors(ctx, overrides.Vectors); err != nil {
		return nil, err
	}
	if err := a.initPublisher(ctx, overrides.Publisher); err != nil {
		a.Close(ctx)
		return nil, err
	}

	topic := cfg.PubSub.TopicName
	if topic == "" {
		topic = localTopic
	}
	a.worker = worker.New(
		siteCrawler,
		cleaner,
		splitter,
		embedder,
		a.vectors,
		a.progress,
		a.pub,
		a.clock,
		worker.Config{
			PageBatchSize:    cfg.Ingest.PageBatchSize,
			EmbedBatchSize:   cfg.Ingest.EmbedBatchSize,
			CollectionPrefix: cfg.Ingest.CollectionPrefix,
			Topic:            topic,
		},
		logger,
	)

	a.docs = ingest.NewDocuments(document.NewExtractor(cleaner), docSplitter, a.worker, logger)

	pool, err := dispatcher.New(cfg.Ingest.WorkerPoolSize, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}
	a.service = ingest.NewService(
		a.progress,
		a.worker,
		pool,
		a.idGen,
		a.clock,
		ingest.Config{MaxConcurrentTasks: cfg.Ingest.MaxConcurrentTasks},
		logger,
	)

	logger.Info("application services initialized",
		zap.String("embedding", cfg.Embedding.Provider),
		zap.String("vectorstore", cfg.VectorStore.Backend),
		zap.Bool("pubsub", a.cfg.PubSub.TopicName != ""),
	)
	return a, nil
}

func (a *App) initVectors(ctx context.Context, override crawler.VectorStore) error {
	if override != nil {
		a.vectors = override
		return nil
	}
	switch a.cfg.VectorStore.Backend {
	case "", "memory":
		a.logger.Info("using in-memory vector store")
		a.vectors = memory.NewVectorStore(sha256.New())
	case "postgres":
		a.logger.Info("connecting to PostgreSQL vector store")
		pg, err := postgres.NewVectorStore(ctx, postgres.VectorStoreConfig{
			DSN:      a.cfg.VectorStore.DSN,
			Table:    a.cfg.VectorStore.Table,
			MaxConns: a.cfg.VectorStore.MaxConns,
		}, sha256.New())
		if err != nil {
			return fmt.Errorf("init postgres vector store: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return fmt.Errorf("ensure vector schema: %w", err)
		}
		a.pg = pg
		a.vectors = pg
		a.checks = append(a.checks, pg.Ping)
	default:
		return fmt.Errorf("unknown vector store backend: %s", a.cfg.VectorStore.Backend)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context, override crawler.Publisher) error {
	if override != nil {
		a.pub = nopCloser{override}
		return nil
	}
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no pubsub topic configured, recording events in memory")
		a.pub = memorypublisher.New(0, a.logger)
		return nil
	}
	a.logger.Info("connecting to GCP Pub/Sub", zap.String("topic", a.cfg.PubSub.TopicName))
	pub, err := pubsubpublisher.New(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.pub = pub
	return nil
}

type nopCloser struct {
	crawler.Publisher
}

func (nopCloser) Close() error { return nil }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Service returns the task orchestrator.
func (a *App) Service() *ingest.Service {
	return a.service
}

// Documents returns the upload ingester.
func (a *App) Documents() *ingest.Documents {
	return a.docs
}

// VectorStore returns the configured vector store.
func (a *App) VectorStore() crawler.VectorStore {
	return a.vectors
}

// ReadyChecks returns probes for the backends that can become unavailable.
func (a *App) ReadyChecks() []func(context.Context) error {
	return a.checks
}

// RunOnce executes one task synchronously on the calling goroutine, bypassing
// admission, and returns its final snapshot.
func (a *App) RunOnce(ctx context.Context, userID, rawURL string, maxPages int) (crawler.Task, error) {
	start, err := crawler.ParseStartURL(rawURL)
	if err != nil {
		return crawler.Task{}, fmt.Errorf("%w: %v", ingest.ErrInvalidURL, err)
	}
	taskID, err := a.idGen.NewID()
	if err != nil {
		return crawler.Task{}, fmt.Errorf("generate task id: %w", err)
	}
	now := a.clock.Now()
	task := crawler.Task{
		ID:         taskID,
		UserID:     userID,
		URL:        start.String(),
		MaxPages:   maxPages,
		State:      crawler.TaskStateCrawling,
		StartedAt:  now,
		LastUpdate: now,
	}
	if err := a.progress.Create(ctx, task); err != nil {
		return crawler.Task{}, fmt.Errorf("create task: %w", err)
	}
	runErr := a.worker.Run(ctx, task)
	final, err := a.progress.Get(context.WithoutCancel(ctx), userID, taskID)
	if err != nil {
		return crawler.Task{}, fmt.Errorf("load task: %w", err)
	}
	return final, runErr
}

// Close shuts services down, waiting for running tasks until ctx ends.
func (a *App) Close(ctx context.Context) {
	a.logger.Info("shutting down application services")
	if a.service != nil {
		if err := a.service.Close(ctx); err != nil {
			a.logger.Warn("tasks still running at shutdown", zap.Error(err))
		}
	}
	if a.pub != nil {
		if err := a.pub.Close(); err != nil {
			a.logger.Warn("error closing publisher", zap.Error(err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
	// Sync on a console logger fails with ENOTTY/EINVAL; nothing to do about it.
	_ = a.logger.Sync()
}
