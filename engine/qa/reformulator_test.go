package qa

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/docqa/engine/core"
	llmadapter "github.com/compozy/docqa/engine/llm/adapter"
)

func TestReformulator_Reformulate(t *testing.T) {
	history := []ChatTurn{
		{Role: RoleHuman, Content: "What is the capital of France?"},
		{Role: RoleAssistant, Content: "Paris is the capital of France."},
	}

	t.Run("Should return the question without a model call when history is empty", func(t *testing.T) {
		gen := newScriptedGenerator()
		r, err := NewReformulator(gen)
		require.NoError(t, err)
		out, err := r.Reformulate(context.Background(), "What is the capital of France?", nil)
		require.NoError(t, err)
		assert.Equal(t, "What is the capital of France?", out)
		assert.Empty(t, gen.calls)
	})

	t.Run("Should send history then the question under the rewrite instruction", func(t *testing.T) {
		gen := newScriptedGenerator()
		gen.replies["reformulate"] = "  What is the population of Paris?  "
		r, err := NewReformulator(gen)
		require.NoError(t, err)
		out, err := r.Reformulate(context.Background(), "What is its population?", history)
		require.NoError(t, err)
		assert.Equal(t, "What is the population of Paris?", out)

		calls := gen.callsFor("reformulate")
		require.Len(t, calls, 1)
		req := calls[0].req
		assert.Equal(t, reformulationPrompt, req.SystemPrompt)
		require.Len(t, req.Messages, 3)
		assert.Equal(t, llmadapter.RoleUser, req.Messages[0].Role)
		assert.Equal(t, llmadapter.RoleAssistant, req.Messages[1].Role)
		assert.Equal(t, llmadapter.Message{Role: llmadapter.RoleUser, Content: "What is its population?"}, req.Messages[2])
	})

	t.Run("Should fall back to the question on a blank reply", func(t *testing.T) {
		gen := newScriptedGenerator()
		r, err := NewReformulator(gen)
		require.NoError(t, err)
		out, err := r.Reformulate(context.Background(), "And its size?", history)
		require.NoError(t, err)
		assert.Equal(t, "And its size?", out)
	})

	t.Run("Should surface model failures as LLM service errors", func(t *testing.T) {
		gen := newScriptedGenerator()
		boom := errors.New("boom")
		gen.errs["reformulate"] = boom
		r, err := NewReformulator(gen)
		require.NoError(t, err)
		_, err = r.Reformulate(context.Background(), "And its size?", history)
		assert.True(t, core.IsLLMService(err))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Should require a generator", func(t *testing.T) {
		_, err := NewReformulator(nil)
		require.Error(t, err)
	})
}
