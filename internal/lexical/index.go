// Package lexical provides BM25 keyword retrieval over a chunk store.
//
// The index is built once from the chunk store and is immutable afterwards,
// so concurrent searches are safe without locking. Only chunks sharing at
// least one term with the query are candidates: a chunk with zero lexical
// overlap never appears in results, regardless of how many results are
// requested.
package lexical

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/varivashyap/studybuddy/internal/chunk"
)

var tracer = otel.Tracer("studybuddy.lexical")

// Config holds BM25 scoring parameters.
type Config struct {
	// K1 controls term-frequency saturation. Default: 1.5.
	K1 float64 `koanf:"k1"`

	// B controls document-length normalization. Default: 0.75.
	B float64 `koanf:"b"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.K1 == 0 {
		c.K1 = 1.5
	}
	if c.B == 0 {
		c.B = 0.75
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.K1 < 0 {
		return fmt.Errorf("k1 must be non-negative, got %v", c.K1)
	}
	if c.B < 0 || c.B > 1 {
		return fmt.Errorf("b must be in [0,1], got %v", c.B)
	}
	return nil
}

// Result is a single lexical search hit.
//
// Score is a raw BM25 score: unbounded, positive, higher is better. Rank is
// the 1-based position within this result list.
type Result struct {
	ChunkID string
	Score   float64
	Rank    int
}

type posting struct {
	doc int // position in the chunk store
	tf  int
}

// Index is an immutable BM25 index over a chunk store.
type Index struct {
	config   Config
	store    *chunk.Store
	postings map[string][]posting
	docLens  []int
	avgLen   float64
}

// NewIndex builds a BM25 index over all chunks in the store.
//
// Each chunk's text is tokenized and added to per-term posting lists. Chunks
// with empty text contribute no terms; they are valid corpus members that can
// simply never match. Building over an empty store is valid and yields an
// index that returns no results.
func NewIndex(store *chunk.Store, config Config) (*Index, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	idx := &Index{
		config:   config,
		store:    store,
		postings: make(map[string][]posting),
		docLens:  make([]int, store.Len()),
	}

	totalLen := 0
	for i := 0; i < store.Len(); i++ {
		tokens := Tokenize(store.At(i).Text)
		idx.docLens[i] = len(tokens)
		totalLen += len(tokens)

		counts := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			counts[tok]++
		}
		for term, tf := range counts {
			idx.postings[term] = append(idx.postings[term], posting{doc: i, tf: tf})
		}
	}

	if store.Len() > 0 {
		idx.avgLen = float64(totalLen) / float64(store.Len())
	}

	return idx, nil
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	return idx.store.Len()
}

// Search returns up to n chunks scored by BM25 against the query text.
//
// Results are ordered by descending score; equal scores are ordered by chunk
// ID ascending so repeated searches are deterministic. A query sharing no
// terms with any chunk returns an empty list, as does an empty index.
func (idx *Index) Search(ctx context.Context, query string, n int) []Result {
	_, span := tracer.Start(ctx, "lexical.Search")
	defer span.End()

	if n <= 0 || idx.store.Len() == 0 {
		return nil
	}

	terms := Tokenize(query)
	if len(terms) == 0 {
		span.SetAttributes(attribute.Int("candidates", 0))
		return nil
	}

	// Deduplicate query terms; BM25 scores each distinct term once per
	// occurrence count in the document, not per occurrence in the query.
	seen := make(map[string]bool, len(terms))
	scores := make(map[int]float64)
	docCount := float64(idx.store.Len())

	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true

		plist, ok := idx.postings[term]
		if !ok {
			continue
		}

		df := float64(len(plist))
		idf := math.Log(1 + (docCount-df+0.5)/(df+0.5))

		for _, p := range plist {
			tf := float64(p.tf)
			norm := 1 - idx.config.B + idx.config.B*float64(idx.docLens[p.doc])/idx.avgLen
			scores[p.doc] += idf * tf * (idx.config.K1 + 1) / (tf + idx.config.K1*norm)
		}
	}

	span.SetAttributes(attribute.Int("candidates", len(scores)))

	results := make([]Result, 0, len(scores))
	for doc, score := range scores {
		results = append(results, Result{ChunkID: idx.store.At(doc).ID, Score: score})
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
	return results
}
