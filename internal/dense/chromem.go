package dense

import (
	"context"
	"fmt"
	"sort"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/varivashyap/studybuddy/internal/chunk"
)

var chromemTracer = otel.Tracer("studybuddy.dense.chromem")

// ChromemConfig holds configuration for the chromem-go backend.
type ChromemConfig struct {
	// Collection is the chromem collection name. Default: "studybuddy_chunks".
	Collection string `koanf:"collection"`

	// Path enables persistent storage when non-empty; otherwise the index
	// is held in memory only, matching the per-session lifecycle of a
	// built handle.
	Path string `koanf:"path"`

	// Compress enables gzip compression for persistent storage.
	Compress bool `koanf:"compress"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "studybuddy_chunks"
	}
}

// ChromemIndex implements Index on top of the chromem-go embedded vector
// database. All vectors are precomputed by the embedder at build time, so
// chromem's own embedding function is never invoked.
type ChromemIndex struct {
	collection *chromem.Collection
	dimension  int
	count      int
}

// NewChromemIndex builds a chromem-backed index over all chunks in the store.
//
// The same build-time validation as FlatIndex applies: every chunk needs an
// embedding of the shared dimensionality, and a build error never leaves a
// usable index behind.
func NewChromemIndex(ctx context.Context, store *chunk.Store, config ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	var db *chromem.DB
	var err error
	if config.Path != "" {
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	// Vectors are always precomputed; surface a clear error if chromem ever
	// tries to embed on its own.
	embeddingFunc := func(_ context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("chromem index has no embedder; all vectors are precomputed")
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", config.Collection, err)
	}

	idx := &ChromemIndex{collection: collection}

	docs := make([]chromem.Document, 0, store.Len())
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
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: vec,
		})
	}

	if len(docs) > 0 {
		if err := collection.AddDocuments(ctx, docs, 1); err != nil {
			return nil, fmt.Errorf("adding documents to chromem: %w", err)
		}
	}
	idx.count = len(docs)

	logger.Debug("chromem index built",
		zap.String("collection", config.Collection),
		zap.Int("chunks", idx.count),
		zap.Int("dimension", idx.dimension),
	)

	return idx, nil
}

// Len returns the number of indexed chunks.
func (idx *ChromemIndex) Len() int {
	return idx.count
}

// Dimension returns the embedding dimensionality the index was built with.
func (idx *ChromemIndex) Dimension() int {
	return idx.dimension
}

// Search returns up to n chunks by descending normalized cosine similarity.
func (idx *ChromemIndex) Search(ctx context.Context, queryEmbedding []float32, n int) ([]Result, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Search")
	defer span.End()

	if n <= 0 || idx.count == 0 {
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

	// chromem rejects nResults above the collection size.
	if n > idx.count {
		n = idx.count
	}

	hits, err := idx.collection.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying chromem: %w", err)
	}

	results := make([]Result, len(hits))
	for i, hit := range hits {
		results[i] = Result{
			ChunkID: hit.ID,
			Score:   normalizeScore(float64(hit.Similarity)),
		}
	}

	// chromem orders by similarity but leaves equal scores unspecified;
	// re-sort with the chunk-ID tie-break so both backends rank identically.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	for i := range results {
		results[i].Rank = i + 1
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}
