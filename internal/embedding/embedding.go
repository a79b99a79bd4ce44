// Package embedding selects the embedding provider used by the pipeline.
package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/siteingest/internal/crawler"
	"github.com/JakeFAU/siteingest/internal/embedding/hash"
	"github.com/JakeFAU/siteingest/internal/embedding/openai"
)

// Providers.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
)

// Config describes the embedding provider.
type Config struct {
	Provider   string
	Host       string
	Model      string
	Token      string
	Dimensions int
}

// New builds the configured embedder.
func New(cfg Config, logger *zap.Logger) (crawler.Embedder, error) {
	switch cfg.Provider {
	case "", ProviderHash:
		return hash.New(cfg.Dimensions), nil
	case ProviderOpenAI:
		e, err := openai.New(openai.Config{Host: cfg.Host, Model: cfg.Model, Token: cfg.Token}, logger)
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
