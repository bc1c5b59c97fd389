package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestKnowledgeMetrics(t *testing.T) {
	t.Run("Should report through the global meter provider", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		prev := otel.GetMeterProvider()
		otel.SetMeterProvider(provider)
		t.Cleanup(func() {
			otel.SetMeterProvider(prev)
			ResetMetricsForTesting()
		})
		ResetMetricsForTesting()

		ctx := context.Background()
		RecordIngestDuration(ctx, "corpus", time.Second)
		RecordIngestChunks(ctx, "example_collection", 4)
		RecordIngestChunks(ctx, "example_collection", 0)
		RecordIngestFile(ctx, "indexed")
		RecordQueryLatency(ctx, "example_collection", 20*time.Millisecond)
		RecordRetrievalEmpty(ctx, "example_collection")
		RecordEmbeddingCall(ctx, "google", 3, nil)
		RecordEmbeddingCache(ctx, "google", true)

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(ctx, &rm))
		names := make(map[string]metricdata.Metrics)
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				names[m.Name] = m
			}
		}
		for _, name := range []string{
			"docqa_knowledge_ingest_duration_seconds",
			"docqa_knowledge_chunks_total",
			"docqa_knowledge_files_total",
			"docqa_knowledge_query_latency_seconds",
			"docqa_knowledge_retrieval_empty_total",
			"docqa_knowledge_embedded_texts_total",
			"docqa_knowledge_embedding_cache_total",
		} {
			assert.Contains(t, names, name)
		}
		chunks := names["docqa_knowledge_chunks_total"].Data.(metricdata.Sum[int64])
		require.Len(t, chunks.DataPoints, 1)
		assert.Equal(t, int64(4), chunks.DataPoints[0].Value)
	})
}
