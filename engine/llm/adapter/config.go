package llmadapter

import (
	"errors"
	"fmt"
	"time"

	"github.com/compozy/docqa/engine/core"
	appconfig "github.com/compozy/docqa/pkg/config"
)

type Provider string

const (
	ProviderGroq   Provider = "groq"
	ProviderGoogle Provider = "google"
	ProviderOpenAI Provider = "openai"
	ProviderMock   Provider = "mock"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// Config describes one chat model binding.
type Config struct {
	Provider          Provider
	Model             string
	APIKey            string
	BaseURL           string
	Temperature       float64
	MaxTokens         int
	Timeout           time.Duration
	Concurrency       int64
	RequestsPerMinute float64
	Retry             core.RetryPolicy
}

// FromAppConfig builds the client config from the application configuration.
func FromAppConfig(cfg *appconfig.Config) *Config {
	out := &Config{
		Provider:          Provider(cfg.LLM.Provider),
		Model:             cfg.LLM.Model,
		BaseURL:           cfg.LLM.BaseURL,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		Timeout:           cfg.LLM.Timeout,
		Concurrency:       cfg.LLM.Concurrency,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		Retry: core.RetryPolicy{
			Attempts:   cfg.LLM.Retry.Attempts,
			Backoff:    cfg.LLM.Retry.Backoff,
			MaxBackoff: cfg.LLM.Retry.MaxBackoff,
		},
	}
	switch out.Provider {
	case ProviderGroq:
		out.APIKey = cfg.Providers.GroqAPIKey.Value()
	case ProviderGoogle:
		out.APIKey = cfg.Providers.GoogleAPIKey.Value()
	case ProviderOpenAI:
		out.APIKey = cfg.Providers.OpenAIAPIKey.Value()
	}
	return out
}

func (c *Config) validate() error {
	if c == nil {
		return errors.New("llm config is required")
	}
	switch c.Provider {
	case ProviderGroq, ProviderGoogle, ProviderOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("llm provider %s requires an api key", c.Provider)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unsupported llm provider %q", c.Provider)
	}
	if c.Model == "" {
		return errors.New("llm model is required")
	}
	if c.Concurrency < 0 || c.RequestsPerMinute < 0 {
		return errors.New("llm throttle limits cannot be negative")
	}
	return nil
}
