// Package hash provides a deterministic, offline embedder. Identical texts map
// to identical unit vectors, which is enough for development and tests.
package hash

import (
	"context"
	"hash/fnv"
	"math"
)

// DefaultDimensions matches common small sentence-embedding models.
const DefaultDimensions = 384

// Embedder derives vectors from an FNV hash of the text.
type Embedder struct {
	dims int
}

// New returns an Embedder producing dims-sized vectors.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

// Embed returns one vector per text, in order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = vector(text, e.dims)
	}
	return out, nil
}

func vector(text string, dims int) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()

	v := make([]float32, dims)
	var sumSquares float64
	for i := range v {
		seed = seed*1664525 + 1013904223 // LCG constants
		v[i] = float32(seed%1000) / 1000.0
		sumSquares += float64(v[i]) * float64(v[i])
	}
	if sumSquares > 0 {
		norm := float32(1 / math.Sqrt(sumSquares))
		for i := range v {
			v[i] *= norm
		}
	}
	return v
}
