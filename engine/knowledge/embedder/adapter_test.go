package embedder

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/compozy/docqa/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubClient struct {
	calls   atomic.Int32
	texts   atomic.Int32
	dim     int
	failFor int32
	err     error
	delay   time.Duration
}

func (s *stubClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	call := s.calls.Add(1)
	s.texts.Add(int32(len(texts)))
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if call <= s.failFor {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, s.dim)
		v[0] = float32(len(text))
		out[i] = v
	}
	return out, nil
}

func testConfig() *Config {
	return &Config{
		ID:        "test",
		Provider:  ProviderGoogle,
		Model:     "embedding-001",
		Dimension: 4,
		BatchSize: 2,
		Retry:     core.RetryPolicy{Attempts: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	}
}

func newStubAdapter(t *testing.T, cfg *Config, client *stubClient) *Adapter {
	t.Helper()
	impl, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(cfg.BatchSize))
	require.NoError(t, err)
	adapter, err := Wrap(cfg, impl)
	require.NoError(t, err)
	return adapter
}

func TestWrap(t *testing.T) {
	t.Run("Should validate configuration", func(t *testing.T) {
		impl, err := embeddings.NewEmbedder(&stubClient{dim: 4})
		require.NoError(t, err)
		_, err = Wrap(&Config{}, impl)
		assert.ErrorIs(t, err, errMissingID)
		cfg := testConfig()
		cfg.Dimension = 0
		_, err = Wrap(cfg, impl)
		assert.ErrorIs(t, err, errInvalidDimension)
		_, err = Wrap(testConfig(), nil)
		assert.Error(t, err)
	})
}

func TestAdapter_EmbedDocuments(t *testing.T) {
	t.Run("Should embed in order across batches", func(t *testing.T) {
		client := &stubClient{dim: 4}
		adapter := newStubAdapter(t, testConfig(), client)
		vectors, err := adapter.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		assert.Equal(t, float32(1), vectors[0][0])
		assert.Equal(t, float32(2), vectors[1][0])
		assert.Equal(t, float32(3), vectors[2][0])
		assert.Equal(t, int32(2), client.calls.Load())
	})

	t.Run("Should serve repeated texts from the cache", func(t *testing.T) {
		client := &stubClient{dim: 4}
		cfg := testConfig()
		cfg.CacheSize = 16
		adapter := newStubAdapter(t, cfg, client)
		_, err := adapter.EmbedDocuments(context.Background(), []string{"a", "a", "bb"})
		require.NoError(t, err)
		assert.Equal(t, int32(2), client.texts.Load())
		_, err = adapter.EmbedQuery(context.Background(), "bb")
		require.NoError(t, err)
		assert.Equal(t, int32(2), client.texts.Load())
	})

	t.Run("Should return empty output for empty input", func(t *testing.T) {
		adapter := newStubAdapter(t, testConfig(), &stubClient{dim: 4})
		vectors, err := adapter.EmbedDocuments(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
	})
}

func TestAdapter_EmbedQuery(t *testing.T) {
	t.Run("Should retry transient failures", func(t *testing.T) {
		client := &stubClient{dim: 4, failFor: 2, err: errors.New("503 service unavailable")}
		adapter := newStubAdapter(t, testConfig(), client)
		vector, err := adapter.EmbedQuery(context.Background(), "capital of France")
		require.NoError(t, err)
		assert.Len(t, vector, 4)
		assert.Equal(t, int32(3), client.calls.Load())
	})

	t.Run("Should surface EmbeddingServiceError once retries are exhausted", func(t *testing.T) {
		client := &stubClient{dim: 4, failFor: 10, err: errors.New("429 too many requests")}
		adapter := newStubAdapter(t, testConfig(), client)
		_, err := adapter.EmbedQuery(context.Background(), "q")
		require.Error(t, err)
		assert.True(t, core.IsEmbeddingService(err))
		assert.Equal(t, int32(3), client.calls.Load())
	})

	t.Run("Should not retry authentication failures", func(t *testing.T) {
		client := &stubClient{dim: 4, failFor: 10, err: errors.New("401 unauthorized")}
		adapter := newStubAdapter(t, testConfig(), client)
		_, err := adapter.EmbedQuery(context.Background(), "q")
		assert.True(t, core.IsEmbeddingService(err))
		assert.Equal(t, int32(1), client.calls.Load())
	})

	t.Run("Should fail fast when the provider quota is exhausted", func(t *testing.T) {
		client := &stubClient{dim: 4, failFor: 10, err: errors.New(
			"API returned unexpected status code: 429: You exceeded your current quota, please check your plan",
		)}
		adapter := newStubAdapter(t, testConfig(), client)
		_, err := adapter.EmbedQuery(context.Background(), "q")
		assert.True(t, core.IsEmbeddingService(err))
		assert.Equal(t, int32(1), client.calls.Load())
	})

	t.Run("Should map timeouts to EmbeddingServiceError", func(t *testing.T) {
		client := &stubClient{dim: 4, delay: 200 * time.Millisecond}
		cfg := testConfig()
		cfg.Timeout = 5 * time.Millisecond
		cfg.Retry.Attempts = 1
		adapter := newStubAdapter(t, cfg, client)
		_, err := adapter.EmbedQuery(context.Background(), "q")
		assert.True(t, core.IsEmbeddingService(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Should reject vectors of the wrong dimension", func(t *testing.T) {
		client := &stubClient{dim: 3}
		adapter := newStubAdapter(t, testConfig(), client)
		_, err := adapter.EmbedQuery(context.Background(), "q")
		assert.ErrorIs(t, err, errDimensionDrift)
		assert.Equal(t, int32(1), client.calls.Load())
	})
}

func TestIsRetryable(t *testing.T) {
	ctx := context.Background()
	t.Run("Should classify provider failures by status", func(t *testing.T) {
		cases := []struct {
			name     string
			provider Provider
			err      error
			want     bool
		}{
			{"openai rate limit", ProviderOpenAI, errors.New("API returned unexpected status code: 429: Rate limit reached for requests"), true},
			{"openai quota", ProviderOpenAI, errors.New("API returned unexpected status code: 429: You exceeded your current quota"), false},
			{"openai quota body", ProviderOpenAI, errors.New(`embed: {"error":{"message":"no credit","type":"insufficient_quota","code":429}}`), false},
			{"openai unauthorized", ProviderOpenAI, errors.New("API returned unexpected status code: 401: Incorrect API key provided"), false},
			{"openai forbidden", ProviderOpenAI, errors.New("API returned unexpected status code: 403"), false},
			{"openai bad request", ProviderOpenAI, errors.New("API returned unexpected status code: 400: input too long"), false},
			{"openai server error", ProviderOpenAI, errors.New("API returned unexpected status code: 500: internal error"), true},
			{"openai bad gateway", ProviderOpenAI, errors.New("API returned unexpected status code: 502"), true},
			{"google rate limit", ProviderGoogle, status.Error(codes.ResourceExhausted, "too many requests, retry later"), true},
			{"google quota", ProviderGoogle, status.Error(codes.ResourceExhausted, "Quota exceeded for quota metric"), false},
			{"google bad key", ProviderGoogle, status.Error(codes.Unauthenticated, "API key not valid"), false},
			{"google denied", ProviderGoogle, status.Error(codes.PermissionDenied, "caller lacks permission"), false},
			{"google unavailable", ProviderGoogle, status.Error(codes.Unavailable, "backend busy"), true},
			{"count that looks like a status", ProviderOpenAI, errors.New("send request: connection dropped after 401 texts"), true},
			{"dimension drift", ProviderOpenAI, errDimensionDrift, false},
			{"caller canceled", ProviderOpenAI, context.Canceled, false},
		}
		for _, tc := range cases {
			assert.Equal(t, tc.want, isRetryable(ctx, tc.provider, tc.err), tc.name)
		}
	})

	t.Run("Should stop once the caller context is done", func(t *testing.T) {
		done, cancel := context.WithCancel(ctx)
		cancel()
		assert.False(t, isRetryable(done, ProviderOpenAI, errors.New("status code: 503")))
	})
}
