package retriever

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Metrics holds retrieval pipeline metrics.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	buildDur metric.Float64Histogram
	queryDur metric.Float64Histogram
	results  metric.Int64Histogram
	fallback metric.Int64Counter
}

// NewMetrics creates a Metrics instance for the retrieval service.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter("github.com/varivashyap/studybuddy/internal/retriever"),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.buildDur, err = m.meter.Float64Histogram(
		"studybuddy.retriever.build_duration_seconds",
		metric.WithDescription("Duration of index builds in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		m.logger.Warn("failed to create build duration histogram", zap.Error(err))
	}

	m.queryDur, err = m.meter.Float64Histogram(
		"studybuddy.retriever.retrieve_duration_seconds",
		metric.WithDescription("Duration of retrieve calls in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		m.logger.Warn("failed to create retrieve duration histogram", zap.Error(err))
	}

	m.results, err = m.meter.Int64Histogram(
		"studybuddy.retriever.results_returned",
		metric.WithDescription("Number of results returned per retrieve call"),
		metric.WithUnit("{result}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 20, 50),
	)
	if err != nil {
		m.logger.Warn("failed to create results histogram", zap.Error(err))
	}

	m.fallback, err = m.meter.Int64Counter(
		"studybuddy.retriever.rerank_fallbacks_total",
		metric.WithDescription("Retrievals that fell back to the fused ordering because the reranker was unavailable"),
		metric.WithUnit("{retrieval}"),
	)
	if err != nil {
		m.logger.Warn("failed to create fallback counter", zap.Error(err))
	}
}

// RecordBuild records metrics for one index build.
func (m *Metrics) RecordBuild(ctx context.Context, duration time.Duration, chunks int) {
	if m.buildDur != nil {
		m.buildDur.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.Int("chunks", chunks),
		))
	}
}

// RecordRetrieve records metrics for one retrieve call.
func (m *Metrics) RecordRetrieve(ctx context.Context, duration time.Duration, results int, fellBack bool) {
	if m.queryDur != nil {
		m.queryDur.Record(ctx, duration.Seconds())
	}
	if m.results != nil {
		m.results.Record(ctx, int64(results))
	}
	if fellBack && m.fallback != nil {
		m.fallback.Add(ctx, 1)
	}
}
