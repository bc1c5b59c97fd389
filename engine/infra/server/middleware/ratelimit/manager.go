package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/otel/metric"

	"github.com/compozy/docqa/engine/infra/server/router"
	"github.com/compozy/docqa/pkg/logger"
)

// Manager owns the limiter for the question endpoints. Keys are client IPs.
type Manager struct {
	config  *Config
	limiter *limiter.Limiter
	driver  string
}

// NewManager builds a limiter backed by redis when client is non-nil and by
// process memory otherwise.
func NewManager(cfg *Config, client *redis.Client) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("rate limit config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := limiter.StoreOptions{Prefix: cfg.Prefix}
	var (
		store  limiter.Store
		driver = "memory"
	)
	if client != nil {
		var err error
		store, err = redisstore.NewStoreWithOptions(client, options)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
		}
		driver = "redis"
	} else {
		store = memory.NewStoreWithOptions(options)
	}
	return &Manager{
		config:  cfg,
		limiter: limiter.New(store, cfg.Rate.ToLimiterRate()),
		driver:  driver,
	}, nil
}

// NewManagerWithMetrics builds a manager and registers its blocked requests counter.
func NewManagerWithMetrics(cfg *Config, client *redis.Client, meter metric.Meter) (*Manager, error) {
	manager, err := NewManager(cfg, client)
	if err != nil {
		return nil, err
	}
	if meter != nil {
		if err := InitMetrics(meter); err != nil {
			return nil, fmt.Errorf("failed to init rate limit metrics: %w", err)
		}
	}
	return manager, nil
}

// Driver reports the backing store kind.
func (m *Manager) Driver() string {
	return m.driver
}

func (m *Manager) Middleware() gin.HandlerFunc {
	return ginlimiter.NewMiddleware(m.limiter,
		ginlimiter.WithKeyGetter(func(c *gin.Context) string { return c.ClientIP() }),
		ginlimiter.WithExcludedKey(func(key string) bool { return slices.Contains(m.config.ExcludedIPs, key) }),
		ginlimiter.WithLimitReachedHandler(func(c *gin.Context) {
			route := c.FullPath()
			if route == "" {
				route = c.Request.URL.Path
			}
			IncrementBlockedRequests(c.Request.Context(), route)
			router.RespondProblemWithCode(c, http.StatusTooManyRequests, router.ErrTooManyRequestsCode,
				"Rate limit exceeded, retry later")
		}),
		ginlimiter.WithErrorHandler(func(c *gin.Context, err error) {
			logger.FromContext(c.Request.Context()).Error("Rate limiter failed", "driver", m.driver, "error", err)
			router.RespondProblemWithCode(c, http.StatusInternalServerError, router.ErrInternalCode,
				"An internal error occurred while processing the question")
		}),
	)
}
