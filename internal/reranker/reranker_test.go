package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOverlapReranker_Rerank(t *testing.T) {
	docs := []Document{
		{ChunkID: "c1", Text: "Photosynthesis converts light into chemical energy.", FusedRank: 1},
		{ChunkID: "c2", Text: "The mitochondria is the powerhouse of the cell.", FusedRank: 2},
		{ChunkID: "c3", Text: "Rivers erode rock over geological time.", FusedRank: 3},
	}

	r := NewOverlapReranker()
	scored, err := r.Rerank(context.Background(), "mitochondria powerhouse cell", docs)
	require.NoError(t, err)
	require.Len(t, scored, 3)

	assert.Equal(t, "c2", scored[0].ChunkID)
	assert.Equal(t, 1.0, scored[0].Score)
	assert.Greater(t, scored[0].Score, scored[1].Score)
}

func TestOverlapReranker_TiesByFusedRank(t *testing.T) {
	docs := []Document{
		{ChunkID: "zz", Text: "unrelated text one", FusedRank: 2},
		{ChunkID: "aa", Text: "unrelated text two", FusedRank: 1},
		{ChunkID: "mm", Text: "unrelated text three", FusedRank: 3},
	}

	r := NewOverlapReranker()
	scored, err := r.Rerank(context.Background(), "mitochondria", docs)
	require.NoError(t, err)
	require.Len(t, scored, 3)

	// All score zero, so the fused ordering is preserved.
	assert.Equal(t, "aa", scored[0].ChunkID)
	assert.Equal(t, "zz", scored[1].ChunkID)
	assert.Equal(t, "mm", scored[2].ChunkID)
}

func TestOverlapReranker_OrderIndependent(t *testing.T) {
	docs := []Document{
		{ChunkID: "c1", Text: "cats and dogs", FusedRank: 1},
		{ChunkID: "c2", Text: "dogs chase cats in the yard", FusedRank: 2},
		{ChunkID: "c3", Text: "weather forecast for tomorrow", FusedRank: 3},
	}
	reversed := []Document{docs[2], docs[1], docs[0]}

	r := NewOverlapReranker()
	first, err := r.Rerank(context.Background(), "cats dogs yard", docs)
	require.NoError(t, err)
	second, err := r.Rerank(context.Background(), "cats dogs yard", reversed)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.Equal(t, first[i].Score, second[i].Score)
	}
}

func TestOverlapReranker_StopwordsIgnored(t *testing.T) {
	docs := []Document{
		{ChunkID: "c1", Text: "the of and in a", FusedRank: 2},
		{ChunkID: "c2", Text: "glucose metabolism", FusedRank: 1},
	}

	r := NewOverlapReranker()
	scored, err := r.Rerank(context.Background(), "what is the role of glucose", docs)
	require.NoError(t, err)

	assert.Equal(t, "c2", scored[0].ChunkID)
	assert.Zero(t, scored[1].Score)
}

func TestTEIReranker_Rerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)

		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Texts, 3)

		require.NoError(t, json.NewEncoder(w).Encode([]rerankResult{
			{Index: 2, Score: 0.9},
			{Index: 0, Score: 0.4},
			{Index: 1, Score: 0.1},
		}))
	}))
	defer server.Close()

	r, err := NewTEIReranker(TEIConfig{BaseURL: server.URL}, zap.NewNop())
	require.NoError(t, err)

	docs := []Document{
		{ChunkID: "c1", Text: "first", FusedRank: 1},
		{ChunkID: "c2", Text: "second", FusedRank: 2},
		{ChunkID: "c3", Text: "third", FusedRank: 3},
	}
	scored, err := r.Rerank(context.Background(), "query", docs)
	require.NoError(t, err)
	require.Len(t, scored, 3)

	assert.Equal(t, "c3", scored[0].ChunkID)
	assert.Equal(t, 0.9, scored[0].Score)
	assert.Equal(t, "c1", scored[1].ChunkID)
	assert.Equal(t, "c2", scored[2].ChunkID)
}

func TestTEIReranker_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading model", http.StatusServiceUnavailable)
	}))
	server.Close()

	r, err := NewTEIReranker(TEIConfig{BaseURL: server.URL}, zap.NewNop())
	require.NoError(t, err)

	_, err = r.Rerank(context.Background(), "query", []Document{{ChunkID: "c1", Text: "text", FusedRank: 1}})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestTEIReranker_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad model", http.StatusInternalServerError)
	}))
	defer server.Close()

	r, err := NewTEIReranker(TEIConfig{BaseURL: server.URL}, zap.NewNop())
	require.NoError(t, err)

	_, err = r.Rerank(context.Background(), "query", []Document{{ChunkID: "c1", Text: "text", FusedRank: 1}})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestTEIReranker_EmptyDocs(t *testing.T) {
	r, err := NewTEIReranker(TEIConfig{BaseURL: "http://localhost:1"}, zap.NewNop())
	require.NoError(t, err)

	scored, err := r.Rerank(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.Empty(t, scored)
}

func TestTEIConfig_Validate(t *testing.T) {
	var cfg TEIConfig
	cfg.ApplyDefaults()
	assert.Error(t, cfg.Validate())

	cfg.BaseURL = "http://localhost:8080"
	assert.NoError(t, cfg.Validate())
}
