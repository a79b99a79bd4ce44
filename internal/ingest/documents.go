package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/siteingest/internal/crawler"
)

// ErrNoChunks is returned when an uploaded document yields no chunks.
var ErrNoChunks = errors.New("no valid text chunks could be created from the file")

// TextExtractor recovers text from an uploaded file. *document.Extractor
// satisfies it.
type TextExtractor interface {
	Extract(filename string, content []byte) (string, error)
}

// Splitter chunks text. chunker.Chunker satisfies it.
type Splitter interface {
	Split(text string) []string
}

// ChunkStorer embeds chunks into a user's collection. *worker.Worker
// satisfies it.
type ChunkStorer interface {
	StoreChunks(ctx context.Context, userID string, chunks []string) (crawler.TaskResult, error)
}

// DocumentResult summarizes one ingested upload.
type DocumentResult struct {
	FileName       string `json:"file_name"`
	CollectionName string `json:"collection_name"`
	ChunksCreated  int    `json:"chunks_created"`
}

// Documents ingests uploaded files synchronously into the uploader's
// collection. Uploads do not count toward the crawl concurrency ceiling.
type Documents struct {
	extractor TextExtractor
	splitter  Splitter
	storer    ChunkStorer
	logger    *zap.Logger
}

// NewDocuments constructs a Documents service.
func NewDocuments(extractor TextExtractor, splitter Splitter, storer ChunkStorer, logger *zap.Logger) *Documents {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Documents{
		extractor: extractor,
		splitter:  splitter,
		storer:    storer,
		logger:    logger.Named("documents"),
	}
}

// IngestDocument extracts, chunks, embeds and stores one file for userID.
// Extraction errors are returned unwrapped so callers can match them.
func (d *Documents) IngestDocument(
	ctx context.Context,
	userID, filename string,
	content []byte,
) (DocumentResult, error) {
	text, err := d.extractor.Extract(filename, content)
	if err != nil {
		d.logger.Info("document rejected", zap.String("user_id", userID), zap.String("file", filename), zap.Error(err))
		return DocumentResult{}, err
	}

	chunks := d.splitter.Split(text)
	if len(chunks) == 0 {
		return DocumentResult{}, ErrNoChunks
	}

	result, err := d.storer.StoreChunks(ctx, userID, chunks)
	if err != nil {
		return DocumentResult{}, fmt.Errorf("store document %s: %w", filename, err)
	}
	d.logger.Info("document ingested",
		zap.String("user_id", userID),
		zap.String("file", filename),
		zap.Int("chunks", result.ChunksCreated),
	)
	return DocumentResult{
		FileName:       filename,
		CollectionName: result.CollectionName,
		ChunksCreated:  result.ChunksCreated,
	}, nil
}
