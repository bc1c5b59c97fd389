package llmadapter

import (
	"context"
	"sync"
	"time"

	"github.com/compozy/docqa/engine/infra/monitoring/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const subsystem = "llm"

var (
	metricsOnce      sync.Once
	metricsInitErr   error
	requestHist      metric.Float64Histogram
	tokenCounter     metric.Int64Counter
	throttleWaitHist metric.Float64Histogram
)

func recordRequest(ctx context.Context, provider, op, outcome string, d time.Duration) {
	if ensureMetrics() != nil || requestHist == nil {
		return
	}
	requestHist.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func recordTokens(ctx context.Context, provider string, usage *Usage) {
	if usage == nil || ensureMetrics() != nil || tokenCounter == nil {
		return
	}
	tokenCounter.Add(ctx, int64(usage.PromptTokens), metric.WithAttributes(
		attribute.String("provider", provider), attribute.String("type", "prompt"),
	))
	tokenCounter.Add(ctx, int64(usage.CompletionTokens), metric.WithAttributes(
		attribute.String("provider", provider), attribute.String("type", "completion"),
	))
}

func recordThrottleWait(ctx context.Context, provider string, d time.Duration) {
	if d <= 0 || ensureMetrics() != nil || throttleWaitHist == nil {
		return
	}
	throttleWaitHist.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("docqa.llm")
		var err error
		requestHist, err = meter.Float64Histogram(
			metrics.MetricNameWithSubsystem(subsystem, "request_duration_seconds"),
			metric.WithDescription("Latency of chat model requests"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(metrics.QueryDurationBuckets...),
		)
		if err != nil {
			metricsInitErr = err
			return
		}
		tokenCounter, err = meter.Int64Counter(
			metrics.MetricNameWithSubsystem(subsystem, "tokens_total"),
			metric.WithDescription("Tokens consumed by chat model requests"),
			metric.WithUnit("1"),
		)
		if err != nil {
			metricsInitErr = err
			return
		}
		throttleWaitHist, err = meter.Float64Histogram(
			metrics.MetricNameWithSubsystem(subsystem, "throttle_wait_seconds"),
			metric.WithDescription("Time spent waiting on the request rate limit"),
			metric.WithUnit("s"),
		)
		metricsInitErr = err
	})
	return metricsInitErr
}
