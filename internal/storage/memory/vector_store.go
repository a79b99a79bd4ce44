// Package memory holds in-process implementations of the progress and vector
// stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/siteingest/internal/crawler"
)

// VectorRecord is one stored chunk.
type VectorRecord struct {
	Key    string
	Text   string
	Vector []float32
}

// VectorStore keeps chunk vectors per collection, keyed by the hash of the
// chunk text so repeated upserts replace rather than duplicate.
type VectorStore struct {
	mu          sync.RWMutex
	hasher      crawler.Hasher
	collections map[string]map[string]VectorRecord
	order       map[string][]string
}

// NewVectorStore creates an empty store.
func NewVectorStore(hasher crawler.Hasher) *VectorStore {
	return &VectorStore{
		hasher:      hasher,
		collections: make(map[string]map[string]VectorRecord),
		order:       make(map[string][]string),
	}
}

// Upsert stores texts with their vectors in collection.
func (s *VectorStore) Upsert(_ context.Context, collection string, texts []string, vectors [][]float32) error {
	if collection == "" {
		return fmt.Errorf("collection is required")
	}
	if len(texts) != len(vectors) {
		return fmt.Errorf("upsert %s: %d texts but %d vectors", collection, len(texts), len(vectors))
	}
	keys := make([]string, len(texts))
	for i, text := range texts {
		key, err := s.hasher.Hash([]byte(text))
		if err != nil {
			return fmt.Errorf("hash chunk: %w", err)
		}
		keys[i] = key
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.collections[collection]
	if !ok {
		records = make(map[string]VectorRecord)
		s.collections[collection] = records
	}
	for i, key := range keys {
		if _, exists := records[key]; !exists {
			s.order[collection] = append(s.order[collection], key)
		}
		records[key] = VectorRecord{
			Key:    key,
			Text:   texts[i],
			Vector: append([]float32(nil), vectors[i]...),
		}
	}
	return nil
}

// Records returns the collection's records in first-insert order.
func (s *VectorStore) Records(collection string) []VectorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.order[collection]
	out := make([]VectorRecord, 0, len(keys))
	for _, key := range keys {
		rec := s.collections[collection][key]
		rec.Vector = append([]float32(nil), rec.Vector...)
		out = append(out, rec)
	}
	return out
}

// Count returns the number of records in collection.
func (s *VectorStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}
