package embeddings

import (
	"context"
	"hash/fnv"

	"github.com/varivashyap/studybuddy/internal/lexical"
)

// defaultHashDimension balances collision rate against vector size for
// paragraph-sized chunks.
const defaultHashDimension = 256

// HashProvider is a deterministic, model-free embedder.
//
// Each token hashes into a bucket of a fixed-size vector, producing a
// bag-of-words embedding whose cosine similarity reflects lexical overlap.
// It captures no semantics and exists for offline runs and tests, where the
// determinism requirement of the Embedder contract must hold across machines
// with no model downloads.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a hash embedder. A non-positive dimension selects
// the default.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = defaultHashDimension
	}
	return &HashProvider{dimension: dimension}
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *HashProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.embed(text)
	}
	return out, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *HashProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return p.embed(text), nil
}

func (p *HashProvider) embed(text string) []float32 {
	vec := make([]float32, p.dimension)
	for _, token := range lexical.Tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		vec[h.Sum64()%uint64(p.dimension)]++
	}
	return vec
}

// Dimension returns the embedding dimension.
func (p *HashProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op; the hash embedder holds no resources.
func (p *HashProvider) Close() error {
	return nil
}
