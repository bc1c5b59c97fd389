package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferedLogger(level LogLevel, asJSON bool) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(&Config{Level: level, Output: &buf, JSON: asJSON, TimeFormat: "15:04:05"}), &buf
}

func TestFromContext(t *testing.T) {
	t.Run("Should return the logger stored in the context", func(t *testing.T) {
		l, _ := bufferedLogger(InfoLevel, false)
		assert.Same(t, l, FromContext(ContextWithLogger(context.Background(), l)))
	})

	t.Run("Should fall back to the default logger", func(t *testing.T) {
		InitForTests()
		assert.Same(t, GetDefault(), FromContext(context.Background()))
		bad := context.WithValue(context.Background(), LoggerCtxKey, "session-42")
		assert.Same(t, GetDefault(), FromContext(bad))
		var nilCtx context.Context
		assert.NotNil(t, FromContext(nilCtx))
	})
}

func TestLogLevel_ToCharmlogLevel(t *testing.T) {
	t.Run("Should map every level and default unknown ones to info", func(t *testing.T) {
		cases := map[LogLevel]int{
			DebugLevel:    -4,
			InfoLevel:     0,
			WarnLevel:     4,
			ErrorLevel:    8,
			DisabledLevel: 1000,
			"verbose":     0,
		}
		for level, want := range cases {
			assert.Equal(t, want, int(level.ToCharmlogLevel()), string(level))
		}
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("Should write key value pairs in text mode", func(t *testing.T) {
		l, buf := bufferedLogger(InfoLevel, false)
		l.Info("Question answered", "session_id", "abc-123", "sources", 3)
		out := buf.String()
		assert.Contains(t, out, "Question answered")
		assert.Contains(t, out, "session_id=abc-123")
		assert.Contains(t, out, "sources=3")
	})

	t.Run("Should emit one JSON object per line in JSON mode", func(t *testing.T) {
		l, buf := bufferedLogger(InfoLevel, true)
		l.With("component", "retriever").Warn("Retrieval returned no chunks", "top_k", 3)
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "Retrieval returned no chunks", entry["msg"])
		assert.Equal(t, "retriever", entry["component"])
		assert.InDelta(t, 3, entry["top_k"], 0)
	})

	t.Run("Should drop entries below the configured level", func(t *testing.T) {
		l, buf := bufferedLogger(WarnLevel, false)
		l.Debug("embedding batch")
		l.Info("chunk stored")
		assert.Empty(t, buf.String())
		l.Error("upsert failed", "error", "timeout")
		assert.Contains(t, buf.String(), "upsert failed")
	})

	t.Run("Should stay silent when disabled", func(t *testing.T) {
		l, buf := bufferedLogger(DisabledLevel, false)
		l.Error("never shown")
		assert.Empty(t, buf.String())
	})
}

func TestSetupLogger(t *testing.T) {
	t.Run("Should install the configured logger as the default", func(t *testing.T) {
		t.Cleanup(InitForTests)
		l := SetupLogger("debug", true, false)
		assert.Same(t, l, GetDefault())
	})

	t.Run("Should read the persistent logging flags", func(t *testing.T) {
		cmd := &cobra.Command{Use: "docqa"}
		cmd.Flags().String("log-level", "info", "")
		cmd.Flags().Bool("log-json", false, "")
		cmd.Flags().Bool("log-source", false, "")
		require.NoError(t, cmd.Flags().Parse([]string{"--log-level", "warn", "--log-json"}))
		level, asJSON, source, err := GetLoggerConfig(cmd)
		require.NoError(t, err)
		assert.Equal(t, "warn", level)
		assert.True(t, asJSON)
		assert.False(t, source)
	})

	t.Run("Should fail when the flags are not registered", func(t *testing.T) {
		_, _, _, err := GetLoggerConfig(&cobra.Command{Use: "bare"})
		assert.Error(t, err)
	})
}
