package ratelimit

import (
	"fmt"
	"time"

	"github.com/ulule/limiter/v3"

	appconfig "github.com/compozy/docqa/pkg/config"
)

// Config represents rate limiting configuration
type Config struct {
	Rate RateConfig
	// Prefix namespaces the limiter keys in the store.
	Prefix      string
	ExcludedIPs []string
}

// RateConfig represents a single rate limit configuration
type RateConfig struct {
	Period time.Duration
	Limit  int64
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() *Config {
	return &Config{
		Rate:   RateConfig{Limit: 60, Period: time.Minute},
		Prefix: "docqa:ratelimit:",
	}
}

// FromAppConfig converts the ratelimit section of the application config.
func FromAppConfig(cfg appconfig.RateLimitConfig) *Config {
	out := DefaultConfig()
	if cfg.Limit > 0 {
		out.Rate.Limit = cfg.Limit
	}
	if cfg.Period > 0 {
		out.Rate.Period = cfg.Period
	}
	if cfg.Prefix != "" {
		out.Prefix = cfg.Prefix
	}
	return out
}

// ToLimiterRate converts RateConfig to limiter.Rate
func (rc RateConfig) ToLimiterRate() limiter.Rate {
	return limiter.Rate{
		Period: rc.Period,
		Limit:  rc.Limit,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Rate.Limit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.Rate.Period <= 0 {
		return fmt.Errorf("rate limit period must be positive")
	}
	return nil
}
