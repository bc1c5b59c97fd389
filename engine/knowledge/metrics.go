package knowledge

import (
	"context"
	"sync"
	"time"

	"github.com/compozy/docqa/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const subsystem = "knowledge"

var (
	metricsOnce           sync.Once
	metricsMu             sync.Mutex
	metricsInitErr        error
	ingestDurationHist    metric.Float64Histogram
	chunkCounter          metric.Int64Counter
	fileCounter           metric.Int64Counter
	queryLatencyHist      metric.Float64Histogram
	retrievalEmptyCounter metric.Int64Counter
	embedCallCounter      metric.Int64Counter
	embedCacheCounter     metric.Int64Counter
)

// RecordIngestDuration records the latency of a corpus or single file ingestion.
func RecordIngestDuration(ctx context.Context, scope string, d time.Duration) {
	if err := ensureMetrics(); err != nil || ingestDurationHist == nil {
		return
	}
	ingestDurationHist.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("scope", scope)))
}

func RecordIngestChunks(ctx context.Context, collection string, chunks int) {
	if chunks <= 0 {
		return
	}
	if err := ensureMetrics(); err != nil || chunkCounter == nil {
		return
	}
	chunkCounter.Add(ctx, int64(chunks), metric.WithAttributes(attribute.String("collection", collection)))
}

// RecordIngestFile counts processed files by outcome (indexed, skipped, failed).
func RecordIngestFile(ctx context.Context, outcome string) {
	if err := ensureMetrics(); err != nil || fileCounter == nil {
		return
	}
	fileCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordQueryLatency(ctx context.Context, collection string, d time.Duration) {
	if err := ensureMetrics(); err != nil || queryLatencyHist == nil {
		return
	}
	queryLatencyHist.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("collection", collection)))
}

func RecordRetrievalEmpty(ctx context.Context, collection string) {
	if err := ensureMetrics(); err != nil || retrievalEmptyCounter == nil {
		return
	}
	retrievalEmptyCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("collection", collection)))
}

// RecordEmbeddingCall counts embedding service round trips by provider and outcome.
func RecordEmbeddingCall(ctx context.Context, provider string, texts int, err error) {
	if ensureMetrics() != nil || embedCallCounter == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	embedCallCounter.Add(ctx, int64(texts), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}

func RecordEmbeddingCache(ctx context.Context, provider string, hit bool) {
	if ensureMetrics() != nil || embedCacheCounter == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	embedCacheCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("result", result),
	))
}

func ResetMetricsForTesting() {
	metricsMu.Lock()
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	ingestDurationHist = nil
	chunkCounter = nil
	fileCounter = nil
	queryLatencyHist = nil
	retrievalEmptyCounter = nil
	embedCallCounter = nil
	embedCacheCounter = nil
	metricsMu.Unlock()
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("docqa.knowledge")
		if err := initIngestMetrics(meter); err != nil {
			metricsInitErr = err
			return
		}
		if err := initQueryMetrics(meter); err != nil {
			metricsInitErr = err
		}
	})
	return metricsInitErr
}

func initIngestMetrics(meter metric.Meter) error {
	var err error
	ingestDurationHist, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem(subsystem, "ingest_duration_seconds"),
		metric.WithDescription("Latency of ingestion runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.IngestDurationBuckets...),
	)
	if err != nil {
		return err
	}
	chunkCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem(subsystem, "chunks_total"),
		metric.WithDescription("Number of chunks written to the vector index"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	fileCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem(subsystem, "files_total"),
		metric.WithDescription("Number of corpus files processed by outcome"),
		metric.WithUnit("1"),
	)
	return err
}

func initQueryMetrics(meter metric.Meter) error {
	var err error
	queryLatencyHist, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem(subsystem, "query_latency_seconds"),
		metric.WithDescription("Latency of retrieval queries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.QueryDurationBuckets...),
	)
	if err != nil {
		return err
	}
	retrievalEmptyCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem(subsystem, "retrieval_empty_total"),
		metric.WithDescription("Number of retrievals that returned no chunks"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	embedCallCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem(subsystem, "embedded_texts_total"),
		metric.WithDescription("Number of texts sent to the embedding service"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	embedCacheCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem(subsystem, "embedding_cache_total"),
		metric.WithDescription("Embedding cache lookups by result"),
		metric.WithUnit("1"),
	)
	return err
}
