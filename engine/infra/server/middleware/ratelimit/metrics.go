package ratelimit

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/compozy/docqa/engine/infra/monitoring/metrics"
)

var (
	rateLimitBlocksTotal metric.Int64Counter
	metricsOnce          sync.Once
	metricsErr           error
)

// InitMetrics initializes rate limiting metrics
func InitMetrics(meter metric.Meter) error {
	metricsOnce.Do(func() {
		rateLimitBlocksTotal, metricsErr = meter.Int64Counter(
			metrics.MetricNameWithSubsystem("http", "rate_limit_blocks_total"),
			metric.WithDescription("Total number of requests blocked by rate limiting"),
			metric.WithUnit("1"),
		)
	})
	return metricsErr
}

// IncrementBlockedRequests increments the blocked requests counter
func IncrementBlockedRequests(ctx context.Context, route string) {
	if rateLimitBlocksTotal != nil {
		rateLimitBlocksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
	}
}
