// Package retriever orchestrates hybrid retrieval: dense and lexical search
// in parallel, reciprocal rank fusion, and optional cross-encoder reranking
// with graceful fallback.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/varivashyap/studybuddy/internal/chunk"
	"github.com/varivashyap/studybuddy/internal/dense"
	"github.com/varivashyap/studybuddy/internal/embeddings"
	"github.com/varivashyap/studybuddy/internal/fusion"
	"github.com/varivashyap/studybuddy/internal/lexical"
	"github.com/varivashyap/studybuddy/internal/reranker"
)

var tracer = otel.Tracer("github.com/varivashyap/studybuddy/internal/retriever")

// Sentinel errors for retrieval operations.
var (
	// ErrUnknownHandle indicates no handle is registered for a fingerprint.
	ErrUnknownHandle = errors.New("unknown index handle")

	// ErrNilHandle indicates a retrieve call against a nil handle.
	ErrNilHandle = errors.New("nil index handle")
)

// Config holds configuration for the retrieval service.
//
// Start from DefaultConfig; the zero value disables hybrid search and
// reranking.
type Config struct {
	// TopN is the candidate depth requested from each signal before fusion.
	// Raised to k when a retrieve call asks for more. Default: 20.
	TopN int `koanf:"top_n"`

	// TopM is the size of the fused shortlist handed to the reranker.
	// Default: 10.
	TopM int `koanf:"top_m"`

	// HybridEnabled runs lexical search alongside dense search. When false,
	// ranking is dense-only.
	HybridEnabled bool `koanf:"hybrid_enabled"`

	// RerankEnabled applies the reranker to the fused shortlist.
	RerankEnabled bool `koanf:"rerank_enabled"`

	// DenseBackend selects the vector index: "flat" or "chromem".
	// Default: "flat".
	DenseBackend string `koanf:"dense_backend"`

	// Chromem configures the chromem backend (when selected).
	Chromem dense.ChromemConfig `koanf:"chromem"`

	// Lexical configures BM25 scoring.
	Lexical lexical.Config `koanf:"lexical"`

	// Fusion configures rank fusion.
	Fusion fusion.Options `koanf:"fusion"`
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	cfg := Config{
		HybridEnabled: true,
		RerankEnabled: true,
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults sets default values for unset fields. Boolean toggles keep
// their zero value; use DefaultConfig for the recommended setup.
func (c *Config) ApplyDefaults() {
	if c.TopN == 0 {
		c.TopN = 20
	}
	if c.TopM == 0 {
		c.TopM = 10
	}
	if c.DenseBackend == "" {
		c.DenseBackend = "flat"
	}
	c.Chromem.ApplyDefaults()
	c.Lexical.ApplyDefaults()
	c.Fusion.ApplyDefaults()
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.TopN <= 0 {
		return fmt.Errorf("top_n must be positive, got %d", c.TopN)
	}
	if c.TopM <= 0 {
		return fmt.Errorf("top_m must be positive, got %d", c.TopM)
	}
	switch c.DenseBackend {
	case "flat", "chromem":
	default:
		return fmt.Errorf("unknown dense backend %q", c.DenseBackend)
	}
	if err := c.Lexical.Validate(); err != nil {
		return fmt.Errorf("lexical: %w", err)
	}
	if err := c.Fusion.Validate(); err != nil {
		return fmt.Errorf("fusion: %w", err)
	}
	return nil
}

// Result is one retrieved chunk, ready for downstream generation.
type Result struct {
	ChunkID string
	Text    string
	Score   float64
	Source  map[string]interface{}
}

// Service is the retrieval orchestrator.
//
// It owns index builds and the handle store; retrieve calls are stateless
// against an immutable handle, so concurrent use is safe.
type Service struct {
	config   Config
	embedder embeddings.Embedder
	reranker reranker.Reranker
	handles  *HandleStore
	logger   *zap.Logger
	metrics  *Metrics
}

// NewService creates a retrieval service. The reranker may be nil, in which
// case fused ordering is always used.
func NewService(config Config, embedder embeddings.Embedder, rr reranker.Reranker, logger *zap.Logger) (*Service, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:   config,
		embedder: embedder,
		reranker: rr,
		handles:  NewHandleStore(),
		logger:   logger,
		metrics:  NewMetrics(logger),
	}, nil
}

// Handles exposes the handle store for session-layer cache management.
func (s *Service) Handles() *HandleStore {
	return s.handles
}

// BuildIndices builds dense and lexical indices over chunks and registers
// the resulting handle under the corpus fingerprint, replacing any previous
// build of the same corpus.
//
// Chunks without embeddings are embedded here in one batch; precomputed
// embeddings are used as-is. A build error never leaves a partially usable
// handle registered.
func (s *Service) BuildIndices(ctx context.Context, chunks []chunk.Chunk) (*Handle, error) {
	ctx, span := tracer.Start(ctx, "retriever.build_indices")
	defer span.End()
	span.SetAttributes(attribute.Int("chunks", len(chunks)))

	start := time.Now()

	work := make([]chunk.Chunk, len(chunks))
	copy(work, chunks)
	if err := s.embedMissing(ctx, work); err != nil {
		span.RecordError(err)
		return nil, err
	}

	store, err := chunk.NewStore(work)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("building chunk store: %w", err)
	}

	denseIdx, err := s.buildDense(ctx, store)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("building dense index: %w", err)
	}

	lexIdx, err := lexical.NewIndex(store, s.config.Lexical)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("building lexical index: %w", err)
	}

	handle := newHandle(store, denseIdx, lexIdx)
	s.handles.Put(handle)

	s.metrics.RecordBuild(ctx, time.Since(start), store.Len())
	s.logger.Info("indices built",
		zap.String("handle_id", handle.ID()),
		zap.String("fingerprint", handle.Fingerprint()),
		zap.Int("chunks", store.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	return handle, nil
}

// embedMissing fills in embeddings for chunks that lack one.
func (s *Service) embedMissing(ctx context.Context, chunks []chunk.Chunk) error {
	var missing []int
	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	texts := make([]string, len(missing))
	for i, idx := range missing {
		texts[i] = chunks[idx].Text
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(missing), err)
	}
	if len(vectors) != len(missing) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(missing))
	}
	for i, idx := range missing {
		chunks[idx].Embedding = vectors[i]
	}
	return nil
}

func (s *Service) buildDense(ctx context.Context, store *chunk.Store) (dense.Index, error) {
	switch s.config.DenseBackend {
	case "chromem":
		idx, err := dense.NewChromemIndex(ctx, store, s.config.Chromem, s.logger)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		idx, err := dense.NewFlatIndex(store)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
}

// LoadHandle restores a handle previously written by Handle.Save, rebuilds
// its indices from the stored chunks, and registers it. Embeddings are part
// of the snapshot, so no embedder call is needed.
func (s *Service) LoadHandle(ctx context.Context, path string) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening handle file: %w", err)
	}
	defer f.Close()

	var snapshot handleSnapshot
	if err := decodeSnapshot(f, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding handle: %w", err)
	}

	store, err := chunk.NewStore(snapshot.Chunks)
	if err != nil {
		return nil, fmt.Errorf("restoring chunk store: %w", err)
	}
	if fp := store.Fingerprint(); fp != snapshot.Fingerprint {
		return nil, fmt.Errorf("handle fingerprint mismatch: stored %s, computed %s", snapshot.Fingerprint, fp)
	}

	denseIdx, err := s.buildDense(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("rebuilding dense index: %w", err)
	}
	lexIdx, err := lexical.NewIndex(store, s.config.Lexical)
	if err != nil {
		return nil, fmt.Errorf("rebuilding lexical index: %w", err)
	}

	handle := &Handle{
		id:          snapshot.ID,
		fingerprint: snapshot.Fingerprint,
		createdAt:   snapshot.CreatedAt,
		store:       store,
		dense:       denseIdx,
		lexical:     lexIdx,
	}
	s.handles.Put(handle)
	return handle, nil
}

// RetrieveByFingerprint resolves a registered handle and retrieves against it.
func (s *Service) RetrieveByFingerprint(ctx context.Context, fingerprint, query string, k int) ([]Result, error) {
	handle, ok := s.handles.Get(fingerprint)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, fingerprint)
	}
	return s.Retrieve(ctx, handle, query, k)
}

// Retrieve runs the full pipeline against a built handle and returns up to k
// results by descending relevance.
//
// k <= 0 and an empty corpus both yield an empty list without error. A query
// embedding failure is fatal for the call. Reranker unavailability falls
// back to the fused ordering and is logged, not surfaced.
func (s *Service) Retrieve(ctx context.Context, handle *Handle, query string, k int) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "retriever.retrieve")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if handle == nil {
		return nil, ErrNilHandle
	}
	if k <= 0 || handle.Len() == 0 {
		return []Result{}, nil
	}

	start := time.Now()
	logger := s.logger.With(zap.String("retrieval_id", uuid.NewString()))

	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	n := s.config.TopN
	if k > n {
		n = k
	}

	denseRanked, lexicalRanked, err := s.searchBoth(ctx, handle, query, queryEmbedding, n)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	fused, err := fusion.Merge(denseRanked, lexicalRanked, s.config.Fusion)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fusing rankings: %w", err)
	}

	final, fellBack := s.rerank(ctx, logger, query, handle, fused, k)
	if len(final) > k {
		final = final[:k]
	}

	s.metrics.RecordRetrieve(ctx, time.Since(start), len(final), fellBack)
	span.SetAttributes(attribute.Int("results", len(final)))
	logger.Debug("retrieval complete",
		zap.Int("k", k),
		zap.Int("dense_candidates", len(denseRanked)),
		zap.Int("lexical_candidates", len(lexicalRanked)),
		zap.Int("fused", len(fused)),
		zap.Int("results", len(final)),
		zap.Bool("rerank_fallback", fellBack),
		zap.Duration("duration", time.Since(start)),
	)
	return final, nil
}

// searchBoth runs dense and lexical search concurrently. Both indices are
// immutable, so results are identical to sequential execution.
func (s *Service) searchBoth(ctx context.Context, handle *Handle, query string, queryEmbedding []float32, n int) ([]fusion.Ranked, []fusion.Ranked, error) {
	var denseRanked, lexicalRanked []fusion.Ranked

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := handle.dense.Search(gctx, queryEmbedding, n)
		if err != nil {
			return fmt.Errorf("dense search: %w", err)
		}
		denseRanked = make([]fusion.Ranked, len(hits))
		for i, hit := range hits {
			denseRanked[i] = fusion.Ranked{ChunkID: hit.ChunkID, Score: hit.Score, Rank: hit.Rank}
		}
		return nil
	})
	if s.config.HybridEnabled {
		g.Go(func() error {
			hits := handle.lexical.Search(gctx, query, n)
			lexicalRanked = make([]fusion.Ranked, len(hits))
			for i, hit := range hits {
				lexicalRanked[i] = fusion.Ranked{ChunkID: hit.ChunkID, Score: hit.Score, Rank: hit.Rank}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return denseRanked, lexicalRanked, nil
}

// rerank rescores the fused shortlist when enabled, falling back to the
// fused ordering if the reranker is unavailable. The second return reports
// whether a fallback happened.
func (s *Service) rerank(ctx context.Context, logger *zap.Logger, query string, handle *Handle, fused []fusion.Result, k int) ([]Result, bool) {
	m := s.config.TopM
	if k > m {
		m = k
	}
	if m > len(fused) {
		m = len(fused)
	}
	shortlist := fused[:m]

	if !s.config.RerankEnabled || s.reranker == nil {
		return s.fromFused(handle, shortlist), false
	}

	docs := make([]reranker.Document, len(shortlist))
	for i, res := range shortlist {
		c, _ := handle.store.Get(res.ChunkID)
		docs[i] = reranker.Document{
			ChunkID:   res.ChunkID,
			Text:      c.Text,
			FusedRank: i + 1,
		}
	}

	scored, err := s.reranker.Rerank(ctx, query, docs)
	if err != nil {
		if errors.Is(err, reranker.ErrUnavailable) {
			logger.Warn("reranker unavailable, using fused ordering", zap.Error(err))
		} else {
			logger.Error("reranking failed, using fused ordering", zap.Error(err))
		}
		return s.fromFused(handle, shortlist), true
	}

	results := make([]Result, len(scored))
	for i, doc := range scored {
		c, _ := handle.store.Get(doc.ChunkID)
		results[i] = Result{
			ChunkID: doc.ChunkID,
			Text:    c.Text,
			Score:   doc.Score,
			Source:  c.Source,
		}
	}
	return results, false
}

// fromFused converts fused entries to results, keeping fused scores.
func (s *Service) fromFused(handle *Handle, fused []fusion.Result) []Result {
	results := make([]Result, len(fused))
	for i, res := range fused {
		c, _ := handle.store.Get(res.ChunkID)
		results[i] = Result{
			ChunkID: res.ChunkID,
			Text:    c.Text,
			Score:   res.Score,
			Source:  c.Source,
		}
	}
	return results
}
