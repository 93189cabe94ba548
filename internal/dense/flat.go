package dense

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/varivashyap/studybuddy/internal/chunk"
)

var flatTracer = otel.Tracer("studybuddy.dense.flat")

// FlatIndex is an exact cosine-similarity index.
//
// Vectors are unit-normalized at build time so search reduces to a dot
// product scan. Exact search keeps results reproducible, which the fusion
// tie-break laws depend on.
type FlatIndex struct {
	ids       []string
	vectors   [][]float32
	dimension int
}

// NewFlatIndex builds a flat index over all chunks in the store.
//
// Every chunk must carry an embedding of the same dimensionality; the first
// chunk's dimension sets the expectation. Returns ErrMissingEmbedding,
// ErrDimensionMismatch or ErrInvalidEmbedding wrapped with the offending
// chunk ID, and never a partially usable index.
func NewFlatIndex(store *chunk.Store) (*FlatIndex, error) {
	idx := &FlatIndex{
		ids:     make([]string, 0, store.Len()),
		vectors: make([][]float32, 0, store.Len()),
	}

	for i := 0; i < store.Len(); i++ {
		c := store.At(i)
		if len(c.Embedding) == 0 {
			return nil, fmt.Errorf("%w: chunk %q", ErrMissingEmbedding, c.ID)
		}
		if idx.dimension == 0 {
			idx.dimension = len(c.Embedding)
		}
		if len(c.Embedding) != idx.dimension {
			return nil, fmt.Errorf("%w: chunk %q has dimension %d, index expects %d",
				ErrDimensionMismatch, c.ID, len(c.Embedding), idx.dimension)
		}
		vec, err := normalize(c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %q", err, c.ID)
		}
		idx.ids = append(idx.ids, c.ID)
		idx.vectors = append(idx.vectors, vec)
	}

	return idx, nil
}

// Len returns the number of indexed chunks.
func (idx *FlatIndex) Len() int {
	return len(idx.ids)
}

// Dimension returns the embedding dimensionality the index was built with.
func (idx *FlatIndex) Dimension() int {
	return idx.dimension
}

// Search returns up to n chunks by descending normalized cosine similarity.
func (idx *FlatIndex) Search(ctx context.Context, queryEmbedding []float32, n int) ([]Result, error) {
	_, span := flatTracer.Start(ctx, "FlatIndex.Search")
	defer span.End()

	if n <= 0 || len(idx.ids) == 0 {
		return nil, nil
	}
	if len(queryEmbedding) != idx.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			ErrDimensionMismatch, len(queryEmbedding), idx.dimension)
	}

	query, err := normalize(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("normalizing query embedding: %w", err)
	}

	results := make([]Result, len(idx.ids))
	for i, vec := range idx.vectors {
		results[i] = Result{
			ChunkID: idx.ids[i],
			Score:   normalizeScore(dot(query, vec)),
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > n {
		results = results[:n]
	}
	for i := range results {
		results[i].Rank = i + 1
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}
