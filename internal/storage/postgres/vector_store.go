// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/siteingest/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "chunks"

// VectorStoreConfig controls the Postgres connection pool used for chunk rows.
type VectorStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// VectorStore writes chunk texts and embeddings into Postgres. Rows are keyed
// by (collection, chunk_hash) so re-ingesting a site overwrites in place.
type VectorStore struct {
	pool   pool
	table  string
	hasher crawler.Hasher
}

// NewVectorStore creates a Postgres-backed VectorStore using the provided config.
func NewVectorStore(ctx context.Context, cfg VectorStoreConfig, hasher crawler.Hasher) (*VectorStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("vectorstore.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewVectorStoreWithPool(p, cfg.Table, hasher)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewVectorStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewVectorStoreWithPool(p pool, table string, hasher crawler.Hasher) (*VectorStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &VectorStore{pool: p, table: table, hasher: hasher}, nil
}

// Close releases the underlying pool resources.
func (s *VectorStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *VectorStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the chunk table when it does not exist.
func (s *VectorStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	collection TEXT NOT NULL,
	chunk_hash TEXT NOT NULL,
	content TEXT NOT NULL,
	embedding REAL[] NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, chunk_hash)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// Upsert writes one batch in a single transaction.
func (s *VectorStore) Upsert(ctx context.Context, collection string, texts []string, vectors [][]float32) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("vector store is not configured")
	}
	if collection == "" {
		return fmt.Errorf("collection is required")
	}
	if len(texts) != len(vectors) {
		return fmt.Errorf("upsert %s: %d texts but %d vectors", collection, len(texts), len(vectors))
	}
	if len(texts) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (collection, chunk_hash, content, embedding)
VALUES ($1, $2, $3, $4)
ON CONFLICT (collection, chunk_hash) DO UPDATE
SET content = EXCLUDED.content, embedding = EXCLUDED.embedding, updated_at = now()`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	for i, text := range texts {
		key, err := s.hasher.Hash([]byte(text))
		if err != nil {
			return rollback(ctx, tx, fmt.Errorf("hash chunk: %w", err))
		}
		if _, err := tx.Exec(ctx, query, collection, key, text, vectors[i]); err != nil {
			return rollback(ctx, tx, fmt.Errorf("insert chunk: %w", err))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("%w (rollback: %v)", cause, err)
	}
	return cause
}
