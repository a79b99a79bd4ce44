// Package openai implements crawler.Embedder against OpenAI-compatible
// embedding APIs through langchaingo.
package openai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Config selects the endpoint and model.
type Config struct {
	Host  string
	Model string
	// Token may be empty for local services that do not authenticate.
	Token string
}

// Embedder wraps a langchaingo embedder.
type Embedder struct {
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// New creates an Embedder for cfg.
func New(cfg Config, logger *zap.Logger) (*Embedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	token := cfg.Token
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.Host != "" {
		opts = append(opts, openai.WithBaseURL(cfg.Host))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &Embedder{embedder: embedder, logger: logger.Named("openai_embedder")}, nil
}

// Embed generates vectors for texts in one call. A result whose length differs
// from the input is an error.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.Debug("generating embeddings", zap.Int("count", len(texts)))
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed documents: got %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
