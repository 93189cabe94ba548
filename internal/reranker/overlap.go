package reranker

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/varivashyap/studybuddy/internal/lexical"
)

var tracer = otel.Tracer("github.com/varivashyap/studybuddy/internal/reranker")

// stopwords excluded from overlap scoring. Common function words would
// otherwise dominate short queries.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "to": true, "was": true,
	"were": true, "what": true, "which": true, "who": true, "will": true,
	"with": true,
}

// OverlapReranker scores documents by query term overlap. It is a cheap,
// fully local stand-in for a cross-encoder and is always available.
type OverlapReranker struct{}

// NewOverlapReranker creates a term-overlap reranker.
func NewOverlapReranker() *OverlapReranker {
	return &OverlapReranker{}
}

// Rerank scores each document by the fraction of distinct query terms it
// contains. Ordering does not depend on the input order of docs.
func (r *OverlapReranker) Rerank(ctx context.Context, query string, docs []Document) ([]ScoredDocument, error) {
	_, span := tracer.Start(ctx, "reranker.overlap.rerank")
	defer span.End()
	span.SetAttributes(attribute.Int("doc_count", len(docs)))

	queryTerms := contentTerms(query)

	scored := make([]ScoredDocument, len(docs))
	for i, doc := range docs {
		scored[i] = ScoredDocument{
			Document: doc,
			Score:    overlapScore(queryTerms, doc.Text),
		}
	}

	sortScored(scored)
	return scored, nil
}

// contentTerms returns the distinct non-stopword tokens of text.
func contentTerms(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, token := range lexical.Tokenize(text) {
		if !stopwords[token] {
			terms[token] = true
		}
	}
	return terms
}

// overlapScore returns the fraction of query terms present in the document.
func overlapScore(queryTerms map[string]bool, docText string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}

	docTerms := contentTerms(docText)
	matched := 0
	for term := range queryTerms {
		if docTerms[term] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// sortScored orders by descending score, ties by ascending fused rank.
func sortScored(scored []ScoredDocument) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].FusedRank < scored[j].FusedRank
	})
}
