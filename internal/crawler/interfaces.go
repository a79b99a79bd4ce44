package crawler

import (
	"context"
	"time"
)

// ProgressStore keeps per-user task snapshots.
type ProgressStore interface {
	Create(ctx context.Context, task Task) error
	Get(ctx context.Context, userID, taskID string) (Task, error)
	Update(ctx context.Context, userID, taskID string, patch TaskPatch) error
	List(ctx context.Context, userID string) ([]Task, error)
}

// VectorStore persists chunk texts with their embeddings. Upsert must be
// idempotent per collection.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, texts []string, vectors [][]float32) error
}

// Embedder turns texts into vectors, preserving order and length.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL. Failures yield a Page with an empty body.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) Page
}

// Hasher computes digests used as chunk keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs.
type IDGenerator interface {
	NewID() (string, error)
}
