package llmadapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/docqa/engine/core"
	appconfig "github.com/compozy/docqa/pkg/config"
)

func testConfig() *Config {
	return &Config{
		Provider: ProviderGroq,
		Model:    "gemma2-9b-it",
		APIKey:   "test-key",
		Timeout:  time.Second,
		Retry:    core.RetryPolicy{Attempts: 3, Backoff: time.Millisecond},
	}
}

func userRequest(text string) *LLMRequest {
	return &LLMRequest{Messages: []Message{{Role: RoleUser, Content: text}}}
}

func TestClient_Generate(t *testing.T) {
	t.Run("Should retry retryable failures", func(t *testing.T) {
		model := &scriptedModel{
			content: "answer",
			errs:    []error{errors.New("status code: 429 rate limit reached"), errors.New("HTTP 503 overloaded")},
		}
		client, err := NewClientWithModel(testConfig(), model)
		require.NoError(t, err)
		resp, err := client.Generate(context.Background(), "synthesize", userRequest("q"))
		require.NoError(t, err)
		assert.Equal(t, "answer", resp.Content)
		assert.Equal(t, 3, model.Calls())
	})

	t.Run("Should stop on non retryable failures", func(t *testing.T) {
		model := &scriptedModel{errs: []error{errors.New("status code: 401 invalid api key")}}
		client, err := NewClientWithModel(testConfig(), model)
		require.NoError(t, err)
		_, err = client.Generate(context.Background(), "synthesize", userRequest("q"))
		require.Error(t, err)
		assert.True(t, core.IsLLMService(err))
		assert.Equal(t, 1, model.Calls())
		llmErr, ok := IsLLMError(err)
		require.True(t, ok)
		assert.Equal(t, ErrCodeUnauthorized, llmErr.Code)
	})

	t.Run("Should wrap exhausted retries as service errors", func(t *testing.T) {
		boom := errors.New("connection refused")
		model := &scriptedModel{errs: []error{boom, boom, boom}}
		client, err := NewClientWithModel(testConfig(), model)
		require.NoError(t, err)
		_, err = client.GenerateContent(context.Background(), userRequest("q"))
		var svcErr *core.LLMServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "generate", svcErr.Op)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, model.Calls())
	})

	t.Run("Should pass unknown failures through without retrying", func(t *testing.T) {
		model := &scriptedModel{errs: []error{errors.New("something odd")}}
		client, err := NewClientWithModel(testConfig(), model)
		require.NoError(t, err)
		_, err = client.Generate(context.Background(), "reformulate", userRequest("q"))
		assert.True(t, core.IsLLMService(err))
		assert.Equal(t, 1, model.Calls())
	})

	t.Run("Should require a model", func(t *testing.T) {
		_, err := NewClientWithModel(testConfig(), nil)
		require.Error(t, err)
	})
}

func TestNewClient(t *testing.T) {
	t.Run("Should build the offline mock provider", func(t *testing.T) {
		client, err := NewClient(context.Background(), &Config{Provider: ProviderMock, Model: "mock"})
		require.NoError(t, err)
		defer client.Close()
		resp, err := client.GenerateContent(context.Background(), &LLMRequest{
			SystemPrompt: "Context:\nParis is the capital of France.",
			Messages:     []Message{{Role: RoleUser, Content: "Capital?"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Paris is the capital of France.", resp.Content)
	})

	t.Run("Should require an api key for hosted providers", func(t *testing.T) {
		_, err := NewClient(context.Background(), &Config{Provider: ProviderGroq, Model: "gemma2-9b-it"})
		require.ErrorContains(t, err, "api key")
	})

	t.Run("Should reject unknown providers", func(t *testing.T) {
		_, err := NewClient(context.Background(), &Config{Provider: "other", Model: "x"})
		require.ErrorContains(t, err, "unsupported")
	})

	t.Run("Should build groq clients against the compatible endpoint", func(t *testing.T) {
		client, err := NewClient(context.Background(), testConfig())
		require.NoError(t, err)
		assert.NotNil(t, client.Throttle())
	})
}

func TestFromAppConfig(t *testing.T) {
	t.Run("Should pick the key of the selected provider", func(t *testing.T) {
		cfg := appconfig.Default()
		cfg.Providers.GroqAPIKey = "groq-key"
		cfg.Providers.GoogleAPIKey = "google-key"
		out := FromAppConfig(cfg)
		assert.Equal(t, ProviderGroq, out.Provider)
		assert.Equal(t, "groq-key", out.APIKey)
		assert.Equal(t, 2, out.Retry.Attempts)
		cfg.LLM.Provider = "google"
		assert.Equal(t, "google-key", FromAppConfig(cfg).APIKey)
	})
}
