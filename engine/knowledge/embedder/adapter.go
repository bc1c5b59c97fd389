package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/knowledge"
	llmadapter "github.com/compozy/docqa/engine/llm/adapter"
	"github.com/compozy/docqa/pkg/logger"
)

// Embedder turns text into fixed-dimension vectors. The same instance serves
// ingestion and query time.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Adapter wraps a langchaingo embedder with timeouts, retries, caching and
// typed service errors.
type Adapter struct {
	id        string
	provider  Provider
	model     string
	dimension int
	batchSize int
	cfg       Config
	impl      embeddings.Embedder
	cacheMu   sync.Mutex
	cache     *lru.Cache[string, []float32]
}

var (
	errMissingID        = errors.New("embedder id is required")
	errMissingProvider  = errors.New("embedder provider is required")
	errMissingModel     = errors.New("embedder model is required")
	errInvalidDimension = errors.New("embedder dimension must be greater than zero")
	errInvalidBatchSize = errors.New("embedder batch size must be greater than zero")
	errDimensionDrift   = errors.New("embedding dimension mismatch")
)

// New constructs a provider-backed embedder adapter.
func New(ctx context.Context, cfg *Config) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.New("embedder config is required")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	options := []embeddings.Option{
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(cfg.StripNewLines),
	}
	impl, err := buildProviderEmbedder(ctx, cfg, options...)
	if err != nil {
		return nil, err
	}
	return newAdapter(cfg, impl)
}

// Wrap constructs an adapter around an existing langchaingo embedder.
func Wrap(cfg *Config, impl embeddings.Embedder) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.New("embedder config is required")
	}
	if impl == nil {
		return nil, fmt.Errorf("embedder %q: implementation is required", cfg.ID)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return newAdapter(cfg, impl)
}

func newAdapter(cfg *Config, impl embeddings.Embedder) (*Adapter, error) {
	a := &Adapter{
		id:        cfg.ID,
		provider:  cfg.Provider,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		cfg:       *cfg,
		impl:      impl,
	}
	if cfg.CacheSize > 0 {
		if err := a.EnableCache(cfg.CacheSize); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Adapter) Dimension() int {
	return a.dimension
}

func (a *Adapter) BatchSize() int {
	return a.batchSize
}

// EnableCache initializes an LRU cache for embeddings.
func (a *Adapter) EnableCache(size int) error {
	if size <= 0 {
		return fmt.Errorf("embedder %q: cache size must be greater than zero", a.id)
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return fmt.Errorf("embedder %q: init cache: %w", a.id, err)
	}
	a.cacheMu.Lock()
	a.cache = cache
	a.cacheMu.Unlock()
	return nil
}

// EmbedDocuments embeds texts in order. Cached texts are served locally and the
// rest go to the service in one batched call.
func (a *Adapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	cache := a.getCache()
	if cache == nil {
		return a.embedBatch(ctx, texts)
	}
	results := make([][]float32, len(texts))
	missingIdx := make(map[string][]int)
	uniqueMissing := make([]string, 0)
	for i, text := range texts {
		if vector, ok := a.lookupCache(cache, text); ok {
			knowledge.RecordEmbeddingCache(ctx, string(a.provider), true)
			results[i] = vector
			continue
		}
		knowledge.RecordEmbeddingCache(ctx, string(a.provider), false)
		if _, seen := missingIdx[text]; !seen {
			uniqueMissing = append(uniqueMissing, text)
		}
		missingIdx[text] = append(missingIdx[text], i)
	}
	if len(uniqueMissing) == 0 {
		return results, nil
	}
	embedded, err := a.embedBatch(ctx, uniqueMissing)
	if err != nil {
		return nil, err
	}
	for i, text := range uniqueMissing {
		for _, idx := range missingIdx[text] {
			results[idx] = cloneVector(embedded[i])
		}
		a.storeCache(cache, text, embedded[i])
	}
	return results, nil
}

// EmbedQuery embeds one query string.
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	cache := a.getCache()
	if vector, ok := a.lookupCache(cache, text); ok {
		knowledge.RecordEmbeddingCache(ctx, string(a.provider), true)
		return vector, nil
	}
	if cache != nil {
		knowledge.RecordEmbeddingCache(ctx, string(a.provider), false)
	}
	vector, err := callWithRetry(ctx, a, "embed query", 1, func(ctx context.Context) ([]float32, error) {
		v, err := a.impl.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		return v, a.checkDimension(v)
	})
	if err != nil {
		return nil, err
	}
	a.storeCache(cache, text, vector)
	return cloneVector(vector), nil
}

func (a *Adapter) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return callWithRetry(ctx, a, "embed documents", len(texts), func(ctx context.Context) ([][]float32, error) {
		vectors, err := a.impl.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("received %d embeddings for %d texts", len(vectors), len(texts))
		}
		for _, v := range vectors {
			if err := a.checkDimension(v); err != nil {
				return nil, err
			}
		}
		return vectors, nil
	})
}

// callWithRetry runs fn under the per-call timeout and retry policy. Any
// failure surfaces as an EmbeddingServiceError.
func callWithRetry[T any](
	ctx context.Context,
	a *Adapter,
	op string,
	texts int,
	fn func(context.Context) (T, error),
) (T, error) {
	log := logger.FromContext(ctx)
	attempt := 0
	out, err := retry.DoValue(ctx, a.cfg.Retry.Strategy(), func(ctx context.Context) (T, error) {
		attempt++
		callCtx := ctx
		if a.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
			defer cancel()
		}
		v, err := fn(callCtx)
		knowledge.RecordEmbeddingCall(ctx, string(a.provider), texts, err)
		if err == nil {
			return v, nil
		}
		if isRetryable(ctx, a.provider, err) {
			log.Warn("Embedding call failed, retrying", "embedder", a.id, "op", op, "attempt", attempt, "error", err)
			return v, retry.RetryableError(err)
		}
		return v, err
	})
	if err != nil {
		var zero T
		log.Error("Embedding service call failed", "embedder", a.id, "op", op, "attempts", attempt, "error", err)
		return zero, core.NewEmbeddingServiceError(op, a.withContext(err))
	}
	return out, nil
}

var quotaMarkers = []string{
	"insufficient_quota", "exceeded your current quota", "quota exceeded", "resource_exhausted",
}

// isRetryable reports whether another attempt may succeed. Caller cancellation,
// dimension drift, quota exhaustion, auth and validation failures are final.
// Rate limits, timeouts, 5xx and unclassified transport failures are retried.
func isRetryable(ctx context.Context, provider Provider, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, errDimensionDrift) || errors.Is(err, context.Canceled) {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return true
		default:
			return false
		}
	}
	classified := llmadapter.NewErrorParser(string(provider)).ParseError(err)
	if classified == nil {
		return true
	}
	return classified.IsRetryable()
}

func (a *Adapter) checkDimension(v []float32) error {
	if len(v) != a.dimension {
		return fmt.Errorf("%w: got %d, want %d", errDimensionDrift, len(v), a.dimension)
	}
	return nil
}

func (a *Adapter) getCache() *lru.Cache[string, []float32] {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	return a.cache
}

func (a *Adapter) lookupCache(cache *lru.Cache[string, []float32], text string) ([]float32, bool) {
	if cache == nil {
		return nil, false
	}
	value, ok := cache.Get(cacheKey(text))
	if !ok {
		return nil, false
	}
	return cloneVector(value), true
}

func (a *Adapter) storeCache(cache *lru.Cache[string, []float32], text string, vector []float32) {
	if cache == nil || len(vector) == 0 {
		return
	}
	cache.Add(cacheKey(text), cloneVector(vector))
}

func (a *Adapter) withContext(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("embedder %q: %w", a.id, err)
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(src []float32) []float32 {
	if len(src) == 0 {
		return nil
	}
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return errMissingID
	}
	if strings.TrimSpace(string(cfg.Provider)) == "" {
		return fmt.Errorf("embedder %q: %w", cfg.ID, errMissingProvider)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return fmt.Errorf("embedder %q: %w", cfg.ID, errMissingModel)
	}
	if cfg.Dimension <= 0 {
		return fmt.Errorf("embedder %q: %w", cfg.ID, errInvalidDimension)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("embedder %q: %w", cfg.ID, errInvalidBatchSize)
	}
	return nil
}

func buildProviderEmbedder(
	ctx context.Context,
	cfg *Config,
	options ...embeddings.Option,
) (embeddings.Embedder, error) {
	switch cfg.Provider {
	case ProviderGoogle:
		return buildGoogleEmbedder(ctx, cfg, options...)
	case ProviderOpenAI:
		return buildOpenAIEmbedder(cfg, options...)
	default:
		return nil, fmt.Errorf("embedder %q: provider %q is not supported", cfg.ID, cfg.Provider)
	}
}

func buildGoogleEmbedder(ctx context.Context, cfg *Config, opts ...embeddings.Option) (embeddings.Embedder, error) {
	googleOpts := []googleai.Option{
		googleai.WithDefaultEmbeddingModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		googleOpts = append(googleOpts, googleai.WithAPIKey(cfg.APIKey))
	}
	client, err := googleai.New(ctx, googleOpts...)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: failed to initialize googleai client: %w", cfg.ID, err)
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: failed to construct googleai embedder: %w", cfg.ID, err)
	}
	return embedder, nil
}

func buildOpenAIEmbedder(cfg *Config, opts ...embeddings.Option) (embeddings.Embedder, error) {
	openaiOpts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		openaiOpts = append(openaiOpts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(openaiOpts...)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: failed to initialize openai client: %w", cfg.ID, err)
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: failed to construct openai embedder: %w", cfg.ID, err)
	}
	return embedder, nil
}
