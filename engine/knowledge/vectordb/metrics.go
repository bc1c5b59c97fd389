package vectordb

import (
	"context"
	"strings"
	"sync"
	"time"

	monitoringmetrics "github.com/compozy/docqa/engine/infra/monitoring/metrics"
	"github.com/compozy/docqa/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const labelUnknownValue = "unknown"

var (
	vectorMetricsOnce       sync.Once
	vectorMetricsErr        error
	vectorOpLatency         metric.Float64Histogram
	vectorResultsCount      metric.Float64Histogram
	vectorTopScore          metric.Float64Histogram
	vectorActiveConnections metric.Int64ObservableGauge
	vectorErrorsTotal       metric.Int64Counter
	vectorPools             sync.Map
	vectorGaugeReg          metric.Registration
)

func ensureVectorMetrics() error {
	vectorMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("docqa.knowledge.vector")
		if err := initVectorHistograms(meter); err != nil {
			vectorMetricsErr = err
			return
		}
		vectorErrorsTotal, vectorMetricsErr = meter.Int64Counter(
			monitoringmetrics.MetricNameWithSubsystem("vectordb", "errors_total"),
			metric.WithDescription("Vector store operation errors"),
		)
		if vectorMetricsErr != nil {
			return
		}
		vectorMetricsErr = initVectorGauge(meter)
	})
	return vectorMetricsErr
}

func initVectorHistograms(meter metric.Meter) error {
	var err error
	vectorOpLatency, err = meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem("vectordb", "operation_seconds"),
		metric.WithDescription("Vector store operation latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2),
	)
	if err != nil {
		return err
	}
	vectorResultsCount, err = meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem("vectordb", "results_per_search"),
		metric.WithDescription("Number of results returned per search"),
		metric.WithExplicitBucketBoundaries(0, 1, 3, 5, 10, 25, 50, 100),
	)
	if err != nil {
		return err
	}
	vectorTopScore, err = meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem("vectordb", "top_score"),
		metric.WithDescription("Similarity score of the best match"),
		metric.WithExplicitBucketBoundaries(0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0),
	)
	return err
}

func initVectorGauge(meter metric.Meter) error {
	var err error
	vectorActiveConnections, err = meter.Int64ObservableGauge(
		monitoringmetrics.MetricNameWithSubsystem("vectordb", "connections_active"),
		metric.WithDescription("Active vector database connections"),
	)
	if err != nil {
		return err
	}
	vectorGaugeReg, err = meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		vectorPools.Range(func(key, value any) bool {
			pool, ok := value.(*pgxpool.Pool)
			if !ok || pool == nil {
				return true
			}
			poolID, _ := key.(string) //nolint:errcheck // keys are always strings
			observer.ObserveInt64(
				vectorActiveConnections,
				int64(pool.Stat().AcquiredConns()),
				metric.WithAttributes(attribute.String("vector_db_id", poolID)),
			)
			return true
		})
		return nil
	}, vectorActiveConnections)
	return err
}

// ShutdownVectorMetrics unregisters the connection gauge callback.
func ShutdownVectorMetrics() {
	if vectorGaugeReg != nil {
		_ = vectorGaugeReg.Unregister() //nolint:errcheck // best effort during shutdown
	}
}

func trackVectorPool(poolID string, pool *pgxpool.Pool) {
	if pool == nil || ensureVectorMetrics() != nil {
		return
	}
	vectorPools.Store(sanitizeLabel(poolID, labelUnknownValue), pool)
}

func untrackVectorPool(poolID string) {
	vectorPools.Delete(sanitizeLabel(poolID, labelUnknownValue))
}

func sanitizeLabel(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return strings.ToLower(trimmed)
}

// instrumentedStore records latency and errors for every store operation.
type instrumentedStore struct {
	provider string
	inner    Store
}

func instrument(provider Provider, store Store) Store {
	return &instrumentedStore{provider: sanitizeLabel(string(provider), labelUnknownValue), inner: store}
}

func (s *instrumentedStore) observe(ctx context.Context, op string, start time.Time, err error) {
	if ensureVectorMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", s.provider),
		attribute.String("operation", op),
	)
	vectorOpLatency.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		vectorErrorsTotal.Add(ctx, 1, attrs)
		logger.FromContext(ctx).Warn("Vector store operation failed", "provider", s.provider, "operation", op, "error", err)
	}
}

func (s *instrumentedStore) Upsert(ctx context.Context, records []Record) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, records)
	s.observe(ctx, "upsert", start, err)
	return err
}

func (s *instrumentedStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	start := time.Now()
	matches, err := s.inner.Search(ctx, query, opts)
	s.observe(ctx, "search", start, err)
	if err == nil && ensureVectorMetrics() == nil {
		attrs := metric.WithAttributes(attribute.String("provider", s.provider))
		vectorResultsCount.Record(ctx, float64(len(matches)), attrs)
		if len(matches) > 0 {
			vectorTopScore.Record(ctx, matches[0].Score, attrs)
		}
	}
	return matches, err
}

func (s *instrumentedStore) Delete(ctx context.Context, filter Filter) error {
	start := time.Now()
	err := s.inner.Delete(ctx, filter)
	s.observe(ctx, "delete", start, err)
	return err
}

func (s *instrumentedStore) Count(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.inner.Count(ctx)
	s.observe(ctx, "count", start, err)
	return n, err
}

func (s *instrumentedStore) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}
