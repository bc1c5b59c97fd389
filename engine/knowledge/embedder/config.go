package embedder

import (
	"time"

	"github.com/compozy/docqa/engine/core"
	appconfig "github.com/compozy/docqa/pkg/config"
)

type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderOpenAI Provider = "openai"
)

// Config describes one embedding service binding.
type Config struct {
	ID            string
	Provider      Provider
	Model         string
	APIKey        string
	BaseURL       string
	Dimension     int
	BatchSize     int
	StripNewLines bool
	CacheSize     int
	Timeout       time.Duration
	Retry         core.RetryPolicy
}

// FromAppConfig builds the embedder config from the application configuration.
func FromAppConfig(cfg *appconfig.Config) *Config {
	out := &Config{
		ID:            string(cfg.Embedder.Provider) + ":" + cfg.Embedder.Model,
		Provider:      Provider(cfg.Embedder.Provider),
		Model:         cfg.Embedder.Model,
		Dimension:     cfg.Embedder.Dimension,
		BatchSize:     cfg.Embedder.BatchSize,
		StripNewLines: cfg.Embedder.StripNewLines,
		CacheSize:     cfg.Embedder.CacheSize,
		Timeout:       cfg.Embedder.Timeout,
		Retry: core.RetryPolicy{
			Attempts:   cfg.Embedder.Retry.Attempts,
			Backoff:    cfg.Embedder.Retry.Backoff,
			MaxBackoff: cfg.Embedder.Retry.MaxBackoff,
		},
	}
	switch out.Provider {
	case ProviderGoogle:
		out.APIKey = cfg.Providers.GoogleAPIKey.Value()
	case ProviderOpenAI:
		out.APIKey = cfg.Providers.OpenAIAPIKey.Value()
	}
	return out
}
