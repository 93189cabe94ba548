// Package reranker rescores fused retrieval candidates against the query
// with a cross-encoder style relevance model.
//
// Reranking is best-effort: when the backing model is unavailable the caller
// falls back to the fused ordering instead of failing the retrieval.
package reranker

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the reranking backend cannot be reached or is not
// configured. Callers should degrade to their pre-rerank ordering.
var ErrUnavailable = errors.New("reranker unavailable")

// Document is a candidate passage to rescore.
type Document struct {
	// ChunkID identifies the chunk this passage came from.
	ChunkID string

	// Text is the passage content scored against the query.
	Text string

	// FusedRank is the candidate's 1-based position in the fused ordering,
	// used to break score ties deterministically.
	FusedRank int
}

// ScoredDocument is a reranked candidate.
type ScoredDocument struct {
	Document

	// Score is the model's relevance score for (query, document). Scores are
	// comparable within a single Rerank call, not across models.
	Score float64
}

// Reranker rescores candidate documents by relevance to a query.
type Reranker interface {
	// Rerank returns the documents ordered by descending relevance score,
	// ties broken by ascending FusedRank. Every input document appears in
	// the output exactly once. Returns ErrUnavailable when the backend
	// cannot serve the request.
	Rerank(ctx context.Context, query string, docs []Document) ([]ScoredDocument, error)
}
