// Package dense provides nearest-neighbor retrieval over chunk embeddings.
//
// Two backends implement the Index interface: FlatIndex does an exact cosine
// scan, which is the right tool for per-session corpora of a few thousand
// chunks, and ChromemIndex delegates to the embedded chromem-go vector
// database. Both are built once and immutable afterwards; concurrent searches
// are safe.
//
// Scores are normalized into [0,1] via (cosine+1)/2 before leaving this
// package, so dense and lexical scores are magnitude-comparable for any
// score-based fusion mode downstream.
package dense

import (
	"context"
	"errors"
	"math"
)

// Sentinel errors for dense index operations.
var (
	// ErrMissingEmbedding is returned at build time when a chunk has no embedding.
	ErrMissingEmbedding = errors.New("chunk missing embedding")

	// ErrDimensionMismatch is returned when an embedding does not match the
	// index dimension. At query time this usually means the embedding model
	// changed between build and search.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidEmbedding is returned for embeddings that cannot be
	// normalized (zero vector, NaN or Inf component).
	ErrInvalidEmbedding = errors.New("invalid embedding")
)

// Result is a single dense search hit.
//
// Score is normalized similarity in [0,1], higher is better. Rank is the
// 1-based position within this result list.
type Result struct {
	ChunkID string
	Score   float64
	Rank    int
}

// Index is a read-only k-nearest-neighbor index over chunk embeddings.
type Index interface {
	// Search returns up to n results ordered by descending similarity.
	// An empty index returns an empty list, not an error. If n exceeds the
	// indexed chunk count, all chunks are returned ranked.
	Search(ctx context.Context, queryEmbedding []float32, n int) ([]Result, error)

	// Len returns the number of indexed chunks.
	Len() int

	// Dimension returns the embedding dimensionality the index was built with.
	Dimension() int
}

// normalize returns a unit-length copy of v.
func normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, ErrInvalidEmbedding
		}
		sum += f * f
	}
	if sum == 0 {
		return nil, ErrInvalidEmbedding
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out, nil
}

// dot computes the dot product of two equal-length vectors.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// normalizeScore maps a cosine similarity in [-1,1] to [0,1].
func normalizeScore(cosine float64) float64 {
	s := (cosine + 1) / 2
	// Clamp against float drift at the boundaries.
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
