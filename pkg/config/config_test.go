package config

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensitiveString(t *testing.T) {
	t.Run("Should redact when printed or marshaled", func(t *testing.T) {
		s := SensitiveString("secret")
		assert.Equal(t, "[REDACTED]", fmt.Sprint(s))
		out, err := json.Marshal(struct{ Key SensitiveString }{Key: s})
		require.NoError(t, err)
		assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(out))
		assert.Equal(t, "secret", s.Value())
	})

	t.Run("Should print empty values as empty", func(t *testing.T) {
		assert.Equal(t, "", SensitiveString("").String())
	})
}

func TestEnvMappings(t *testing.T) {
	t.Run("Should expose provider keys by their conventional names", func(t *testing.T) {
		m := GenerateEnvToConfigMap()
		assert.Equal(t, "providers.google_api_key", m["GOOGLE_API_KEY"])
		assert.Equal(t, "providers.groq_api_key", m["GROQ_API_KEY"])
		assert.Equal(t, "SERVER_PORT", GetEnvVarForConfigPath("server.port"))
	})

	t.Run("Should flag secret paths", func(t *testing.T) {
		assert.True(t, IsSensitiveConfigPath("vector_db.dsn"))
		assert.True(t, IsSensitiveConfigPath("providers.openai_api_key"))
		assert.False(t, IsSensitiveConfigPath("server.port"))
	})
}

func TestValidateCredentials(t *testing.T) {
	t.Run("Should require the key of each selected provider", func(t *testing.T) {
		cfg := Default()
		err := ValidateCredentials(cfg)
		require.ErrorIs(t, err, ErrMissingCredential)
		assert.Contains(t, err.Error(), "GOOGLE_API_KEY, GROQ_API_KEY")

		cfg.Providers.GoogleAPIKey = "g"
		err = ValidateCredentials(cfg)
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "GOOGLE_API_KEY")

		cfg.Providers.GroqAPIKey = "q"
		assert.NoError(t, ValidateCredentials(cfg))
	})

	t.Run("Should not require keys for the mock model", func(t *testing.T) {
		cfg := Default()
		cfg.LLM.Provider = "mock"
		cfg.Providers.GoogleAPIKey = "g"
		assert.Equal(t, []string{"GOOGLE_API_KEY"}, RequiredCredentials(cfg))
		assert.NoError(t, ValidateCredentials(cfg))
	})
}

func TestManager(t *testing.T) {
	t.Run("Should store loaded configuration and expose it through context", func(t *testing.T) {
		m := NewManager(newTestService(nil))
		source := &mockSource{sourceType: SourceCLI, data: map[string]any{"qa": map[string]any{"top_k": 7}}}
		_, err := m.Load(context.Background(), source)
		require.NoError(t, err)
		ctx := ContextWithManager(context.Background(), m)
		assert.Equal(t, 7, FromContext(ctx).QA.TopK)

		source.data = map[string]any{"qa": map[string]any{"top_k": 9}}
		cfg, err := m.Reload(ctx)
		require.NoError(t, err)
		assert.Equal(t, 9, cfg.QA.TopK)
		assert.Same(t, cfg, m.Get())
	})

	t.Run("Should fall back to defaults without a manager", func(t *testing.T) {
		assert.Equal(t, 3, FromContext(context.Background()).QA.TopK)
	})
}
