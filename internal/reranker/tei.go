package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TEIConfig holds configuration for the text-embeddings-inference reranker.
type TEIConfig struct {
	// BaseURL is the base URL of the TEI server hosting a reranker model.
	BaseURL string `koanf:"base_url"`

	// Timeout is the per-request timeout. Default: 10s.
	Timeout time.Duration `koanf:"timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *TEIConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Validate validates the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL required")
	}
	return nil
}

// TEIReranker scores query/document pairs via a text-embeddings-inference
// server running a cross-encoder model.
type TEIReranker struct {
	config TEIConfig
	client *http.Client
	logger *zap.Logger
}

// NewTEIReranker creates a TEI-backed reranker.
func NewTEIReranker(config TEIConfig, logger *zap.Logger) (*TEIReranker, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TEIReranker{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

// rerankRequest is the request body for the TEI rerank endpoint.
type rerankRequest struct {
	Query    string   `json:"query"`
	Texts    []string `json:"texts"`
	Truncate bool     `json:"truncate"`
}

// rerankResult is one scored entry in the TEI rerank response.
type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank scores each document against the query. Transport failures and
// server errors map to ErrUnavailable so callers can degrade gracefully.
func (r *TEIReranker) Rerank(ctx context.Context, query string, docs []Document) ([]ScoredDocument, error) {
	ctx, span := tracer.Start(ctx, "reranker.tei.rerank")
	defer span.End()
	span.SetAttributes(attribute.Int("doc_count", len(docs)))

	if len(docs) == 0 {
		return []ScoredDocument{}, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}

	results, err := r.post(ctx, rerankRequest{Query: query, Texts: texts, Truncate: true})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	scored := make([]ScoredDocument, len(docs))
	for i, doc := range docs {
		scored[i] = ScoredDocument{Document: doc}
	}
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(scored) {
			return nil, fmt.Errorf("rerank response index %d out of range for %d documents", res.Index, len(docs))
		}
		scored[res.Index].Score = res.Score
	}

	sortScored(scored)
	return scored, nil
}

// post sends a rerank request and decodes the scored results.
func (r *TEIReranker) post(ctx context.Context, req rerankRequest) ([]rerankResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.BaseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(respBody))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return results, nil
}
