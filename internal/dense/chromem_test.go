package dense

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varivashyap/studybuddy/internal/chunk"
)

func TestChromemIndexBuildValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("missing embedding", func(t *testing.T) {
		s, err := chunk.NewStore([]chunk.Chunk{{ID: "a", Text: "no vector"}})
		require.NoError(t, err)
		_, err = NewChromemIndex(ctx, s, ChromemConfig{}, nil)
		assert.ErrorIs(t, err, ErrMissingEmbedding)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		s, err := chunk.NewStore([]chunk.Chunk{
			{ID: "a", Text: "x", Embedding: []float32{1, 0}},
			{ID: "b", Text: "y", Embedding: []float32{1, 0, 0}},
		})
		require.NoError(t, err)
		_, err = NewChromemIndex(ctx, s, ChromemConfig{}, nil)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("empty store", func(t *testing.T) {
		s, err := chunk.NewStore(nil)
		require.NoError(t, err)
		idx, err := NewChromemIndex(ctx, s, ChromemConfig{}, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, idx.Len())

		results, err := idx.Search(ctx, []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestChromemMatchesFlatRanking(t *testing.T) {
	ctx := context.Background()
	s, err := chunk.NewStore([]chunk.Chunk{
		{ID: "a", Text: "alpha", Embedding: []float32{1, 0, 0}},
		{ID: "b", Text: "beta", Embedding: []float32{0, 1, 0}},
		{ID: "c", Text: "gamma", Embedding: []float32{0.8, 0.2, 0}},
		{ID: "d", Text: "delta", Embedding: []float32{0.5, 0.5, 0}},
	})
	require.NoError(t, err)

	flat, err := NewFlatIndex(s)
	require.NoError(t, err)
	chrom, err := NewChromemIndex(ctx, s, ChromemConfig{}, nil)
	require.NoError(t, err)

	query := []float32{0.9, 0.1, 0}

	flatResults, err := flat.Search(ctx, query, 4)
	require.NoError(t, err)
	chromResults, err := chrom.Search(ctx, query, 4)
	require.NoError(t, err)

	require.Len(t, chromResults, len(flatResults))
	for i := range flatResults {
		assert.Equal(t, flatResults[i].ChunkID, chromResults[i].ChunkID, "position %d", i)
		assert.InDelta(t, flatResults[i].Score, chromResults[i].Score, 1e-5, "position %d", i)
		assert.Equal(t, flatResults[i].Rank, chromResults[i].Rank, "position %d", i)
	}
}

func TestChromemClampsRequestedResults(t *testing.T) {
	ctx := context.Background()
	s, err := chunk.NewStore([]chunk.Chunk{
		{ID: "a", Text: "alpha", Embedding: []float32{1, 0}},
		{ID: "b", Text: "beta", Embedding: []float32{0, 1}},
	})
	require.NoError(t, err)

	idx, err := NewChromemIndex(ctx, s, ChromemConfig{}, nil)
	require.NoError(t, err)

	results, err := idx.Search(ctx, []float32{1, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
