package llmadapter

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorParser_ParseError(t *testing.T) {
	parser := NewErrorParser("groq")

	t.Run("Should return nil for nil error", func(t *testing.T) {
		assert.Nil(t, parser.ParseError(nil))
	})

	t.Run("Should extract status codes from provider messages", func(t *testing.T) {
		llmErr := parser.ParseError(errors.New("API returned unexpected status code: 429: slow down"))
		require.NotNil(t, llmErr)
		assert.Equal(t, http.StatusTooManyRequests, llmErr.StatusCode)
		assert.Equal(t, ErrCodeRateLimit, llmErr.Code)
		assert.True(t, llmErr.IsRetryable())
	})

	t.Run("Should classify server errors as retryable", func(t *testing.T) {
		llmErr := parser.ParseError(errors.New("HTTP 503 upstream failure"))
		require.NotNil(t, llmErr)
		assert.Equal(t, ErrCodeServerError, llmErr.Code)
		assert.True(t, llmErr.IsRetryable())
	})

	t.Run("Should classify invalid keys as unauthorized", func(t *testing.T) {
		llmErr := parser.ParseError(errors.New("Invalid API Key provided"))
		require.NotNil(t, llmErr)
		assert.Equal(t, ErrCodeUnauthorized, llmErr.Code)
		assert.False(t, llmErr.IsRetryable())
	})

	t.Run("Should detect quota exhaustion per provider", func(t *testing.T) {
		llmErr := NewErrorParser("google").ParseError(errors.New("rpc error: RESOURCE_EXHAUSTED"))
		require.NotNil(t, llmErr)
		assert.Equal(t, ErrCodeQuotaExceeded, llmErr.Code)
	})

	t.Run("Should detect network failures", func(t *testing.T) {
		reset := parser.ParseError(errors.New("read tcp: connection reset by peer"))
		require.NotNil(t, reset)
		assert.Equal(t, ErrCodeConnectionReset, reset.Code)
		refused := parser.ParseError(errors.New("dial tcp 127.0.0.1:1: connection refused"))
		require.NotNil(t, refused)
		assert.Equal(t, ErrCodeConnectionRefused, refused.Code)
		timeout := parser.ParseError(errors.New("request timed out"))
		require.NotNil(t, timeout)
		assert.Equal(t, ErrCodeTimeout, timeout.Code)
	})

	t.Run("Should keep already classified errors", func(t *testing.T) {
		original := NewErrorWithCode(ErrCodeContentPolicy, "blocked", "groq", nil)
		wrapped := fmt.Errorf("call: %w", original)
		assert.Same(t, original, parser.ParseError(wrapped))
	})

	t.Run("Should classify JSON response bodies by error type", func(t *testing.T) {
		body := `POST /v1/chat/completions: {"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`
		llmErr := NewErrorParser("openai").ParseError(errors.New(body))
		require.NotNil(t, llmErr)
		assert.Equal(t, ErrCodeQuotaExceeded, llmErr.Code)
		assert.Equal(t, "You exceeded your current quota", llmErr.Message)
	})

	t.Run("Should take numeric status codes from JSON bodies", func(t *testing.T) {
		body := `{"error":{"message":"The model is overloaded","code":503,"status":"UNAVAILABLE"}}`
		llmErr := NewErrorParser("google").ParseError(errors.New(body))
		require.NotNil(t, llmErr)
		assert.Equal(t, http.StatusServiceUnavailable, llmErr.StatusCode)
		assert.True(t, llmErr.IsRetryable())
	})

	t.Run("Should fall back to text matching for invalid JSON", func(t *testing.T) {
		llmErr := parser.ParseError(errors.New(`upstream said {not json} rate limit`))
		require.NotNil(t, llmErr)
		assert.Equal(t, ErrCodeRateLimit, llmErr.Code)
	})

	t.Run("Should return nil for unknown errors", func(t *testing.T) {
		assert.Nil(t, parser.ParseError(errors.New("something odd happened")))
	})
}
