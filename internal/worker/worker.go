// Package worker implements the crawl-to-vector-store pipeline for one task.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/siteingest/internal/crawler"
	"github.com/JakeFAU/siteingest/internal/logging"
	"github.com/JakeFAU/siteingest/internal/metrics"
)

// Pipeline failures surfaced to callers through the task's error field.
var (
	ErrNoPages           = errors.New("no pages scraped")
	ErrNoChunks          = errors.New("no text content")
	ErrEmbeddingMismatch = errors.New("embedding count mismatch")
)

const (
	msgNoPages  = "No pages could be scraped from the provided URL"
	msgNoChunks = "No valid text content found to ingest from the website"
)

// Defaults mirror the batch sizes the pipeline was tuned with.
const (
	DefaultPageBatchSize  = 5
	DefaultEmbedBatchSize = 50
)

// SiteCrawler walks a site. *crawler.Crawler satisfies it.
type SiteCrawler interface {
	CrawlWithProgress(ctx context.Context, startURL string, maxPages int, onPage func(visited int)) (map[string]string, error)
}

// TextCleaner extracts readable text from HTML. *extract.Cleaner satisfies it.
type TextCleaner interface {
	Clean(html string) string
}

// TextSplitter chunks text. chunker.Chunker satisfies it.
type TextSplitter interface {
	Split(text string) []string
}

// Config controls Worker behavior.
type Config struct {
	PageBatchSize    int
	EmbedBatchSize   int
	CollectionPrefix string
	Topic            string
}

// Worker executes ingestion tasks. It is safe for concurrent use; each Run
// owns its task.
type Worker struct {
	crawler   SiteCrawler
	cleaner   TextCleaner
	splitter  TextSplitter
	embedder  crawler.Embedder
	vectors   crawler.VectorStore
	progress  crawler.ProgressStore
	publisher crawler.Publisher
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher may be nil.
func New(
	siteCrawler SiteCrawler,
	cleaner TextCleaner,
	splitter TextSplitter,
	embedder crawler.Embedder,
	vectors crawler.VectorStore,
	progress crawler.ProgressStore,
	publisher crawler.Publisher,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.PageBatchSize <= 0 {
		cfg.PageBatchSize = DefaultPageBatchSize
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Worker{
		crawler:   siteCrawler,
		cleaner:   cleaner,
		splitter:  splitter,
		embedder:  embedder,
		vectors:   vectors,
		progress:  progress,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("worker"),
	}
}

// Collection returns the vector store collection for userID.
func (w *Worker) Collection(userID string) string {
	return w.cfg.CollectionPrefix + userID
}

// Run drives task through crawl, clean, chunk, embed and store, recording
// progress after every phase and batch. The returned error has already been
// written to the task's terminal state.
func (w *Worker) Run(ctx context.Context, task crawler.Task) (err error) {
	logger := logging.ForTask(w.logger, task.ID, task.UserID, task.URL)
	metrics.IncActiveTasks()
	defer metrics.DecActiveTasks()

	var result crawler.TaskResult
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pipeline panic: %v", rec)
		}
		w.finish(ctx, task, result, err, logger)
	}()

	logger.Info("task started", zap.Int("max_pages", task.MaxPages))
	result, err = w.run(ctx, task, logger)
	return err
}

func (w *Worker) run(ctx context.Context, task crawler.Task, logger *zap.Logger) (crawler.TaskResult, error) {
	pages, err := w.crawler.CrawlWithProgress(ctx, task.URL, task.MaxPages, func(visited int) {
		w.update(ctx, task, crawler.TaskPatch{PagesScraped: crawler.Int(visited)}, logger)
	})
	if err != nil {
		return crawler.TaskResult{}, fmt.Errorf("crawl: %w", err)
	}
	if len(pages) == 0 {
		return crawler.TaskResult{}, ErrNoPages
	}
	logger.Info("crawl complete", zap.Int("pages", len(pages)))
	w.update(ctx, task, crawler.TaskPatch{
		State:        crawler.TaskStateProcessing,
		PagesScraped: crawler.Int(len(pages)),
	}, logger)

	chunks, err := w.process(ctx, task, pages, logger)
	if err != nil {
		return crawler.TaskResult{}, err
	}

	w.update(ctx, task, crawler.TaskPatch{State: crawler.TaskStateGeneratingEmbeddings}, logger)
	vectors, err := w.embed(ctx, chunks)
	if err != nil {
		return crawler.TaskResult{}, err
	}

	collection := w.Collection(task.UserID)
	w.update(ctx, task, crawler.TaskPatch{State: crawler.TaskStateStoring}, logger)
	if err := w.store(ctx, collection, chunks, vectors); err != nil {
		return crawler.TaskResult{}, err
	}

	return crawler.TaskResult{
		CollectionName: collection,
		PagesScraped:   len(pages),
		ChunksCreated:  len(chunks),
	}, nil
}

// StoreChunks embeds chunks and writes them to userID's collection, using the
// same batching as a crawl task. It does not touch the progress store.
func (w *Worker) StoreChunks(ctx context.Context, userID string, chunks []string) (crawler.TaskResult, error) {
	if len(chunks) == 0 {
		return crawler.TaskResult{}, ErrNoChunks
	}
	vectors, err := w.embed(ctx, chunks)
	if err != nil {
		return crawler.TaskResult{}, err
	}
	collection := w.Collection(userID)
	if err := w.store(ctx, collection, chunks, vectors); err != nil {
		return crawler.TaskResult{}, err
	}
	w.logger.Info("chunks stored",
		zap.String("user_id", userID),
		zap.String("collection", collection),
		zap.Int("chunks", len(chunks)),
	)
	return crawler.TaskResult{CollectionName: collection, ChunksCreated: len(chunks)}, nil
}

// process cleans and chunks pages in URL order, batch by batch.
func (w *Worker) process(
	ctx context.Context,
	task crawler.Task,
	pages map[string]string,
	logger *zap.Logger,
) ([]string, error) {
	urls := make([]string, 0, len(pages))
	for u := range pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	var chunks []string
	for start := 0; start < len(urls); start += w.cfg.PageBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("process pages: %w", err)
		}
		end := min(start+w.cfg.PageBatchSize, len(urls))
		for _, u := range urls[start:end] {
			text := w.cleaner.Clean(pages[u])
			if text == "" {
				logger.Debug("no text content on page", zap.String("page", u))
				continue
			}
			chunks = append(chunks, w.splitter.Split(text)...)
		}
		w.update(ctx, task, crawler.TaskPatch{ChunksCreated: crawler.Int(len(chunks))}, logger)
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	logger.Info("pages processed", zap.Int("chunks", len(chunks)))
	return chunks, nil
}

func (w *Worker) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += w.cfg.EmbedBatchSize {
		end := min(start+w.cfg.EmbedBatchSize, len(chunks))
		began := time.Now()
		batch, err := w.embedder.Embed(ctx, chunks[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		metrics.ObserveEmbeddingBatch(time.Since(began))
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: %d vectors for %d chunks", ErrEmbeddingMismatch, len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (w *Worker) store(ctx context.Context, collection string, chunks []string, vectors [][]float32) error {
	for start := 0; start < len(chunks); start += w.cfg.EmbedBatchSize {
		end := min(start+w.cfg.EmbedBatchSize, len(chunks))
		if err := w.vectors.Upsert(ctx, collection, chunks[start:end], vectors[start:end]); err != nil {
			return fmt.Errorf("store chunks %d-%d: %w", start, end, err)
		}
		metrics.AddChunks(end - start)
	}
	return nil
}

func (w *Worker) finish(
	ctx context.Context,
	task crawler.Task,
	result crawler.TaskResult,
	runErr error,
	logger *zap.Logger,
) {
	event := crawler.TaskEvent{
		TaskID: task.ID,
		UserID: task.UserID,
		URL:    task.URL,
	}
	if w.clock != nil {
		event.FinishedAt = w.clock.Now()
	}

	if runErr != nil {
		message := FailureMessage(runErr)
		logger.Error("task failed", zap.Error(runErr))
		w.update(ctx, task, crawler.TaskPatch{
			State: crawler.TaskStateError,
			Error: crawler.String(message),
		}, logger)
		event.State = crawler.TaskStateError
		event.Error = message
	} else {
		logger.Info("task completed",
			zap.Int("pages", result.PagesScraped),
			zap.Int("chunks", result.ChunksCreated),
			zap.String("collection", result.CollectionName),
		)
		w.update(ctx, task, crawler.TaskPatch{
			State:         crawler.TaskStateCompleted,
			PagesScraped:  crawler.Int(result.PagesScraped),
			ChunksCreated: crawler.Int(result.ChunksCreated),
			Result:        &result,
		}, logger)
		event.State = crawler.TaskStateCompleted
		event.PagesScraped = result.PagesScraped
		event.ChunksCreated = result.ChunksCreated
	}
	metrics.ObserveTask(string(event.State))
	w.publish(ctx, event, logger)
}

// FailureMessage maps a pipeline error to the text stored on the task.
func FailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoPages):
		return msgNoPages
	case errors.Is(err, ErrNoChunks):
		return msgNoChunks
	default:
		return err.Error()
	}
}

func (w *Worker) update(ctx context.Context, task crawler.Task, patch crawler.TaskPatch, logger *zap.Logger) {
	// Progress must land even when the run context is already canceled.
	if err := w.progress.Update(context.WithoutCancel(ctx), task.UserID, task.ID, patch); err != nil {
		logger.Warn("progress update failed", zap.String("state", string(patch.State)), zap.Error(err))
	}
}

func (w *Worker) publish(ctx context.Context, event crawler.TaskEvent, logger *zap.Logger) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	id, err := w.publisher.Publish(context.WithoutCancel(ctx), w.cfg.Topic, event)
	if err != nil {
		logger.Warn("publish task event failed", zap.String("topic", w.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("task event published", zap.String("message_id", id))
}
