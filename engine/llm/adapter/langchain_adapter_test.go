package llmadapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestLangChainAdapter_ConvertMessages(t *testing.T) {
	adapter := NewLangChainAdapter(&scriptedModel{}, &Config{Provider: ProviderMock})

	t.Run("Should put the system prompt first and map roles", func(t *testing.T) {
		messages := adapter.convertMessages(&LLMRequest{
			SystemPrompt: "You are a helpful assistant",
			Messages: []Message{
				{Role: RoleUser, Content: "Hello"},
				{Role: RoleAssistant, Content: "Hi there!"},
			},
		})
		require.Len(t, messages, 3)
		assert.Equal(t, llms.ChatMessageTypeSystem, messages[0].Role)
		assert.Equal(t, llms.ChatMessageTypeHuman, messages[1].Role)
		assert.Equal(t, llms.ChatMessageTypeAI, messages[2].Role)
		assert.Equal(t, "Hi there!", messages[2].Parts[0].(llms.TextContent).Text)
	})

	t.Run("Should omit an empty system prompt", func(t *testing.T) {
		messages := adapter.convertMessages(&LLMRequest{Messages: []Message{{Role: RoleUser, Content: "Test"}}})
		require.Len(t, messages, 1)
		assert.Equal(t, llms.ChatMessageTypeHuman, messages[0].Role)
	})
}

func TestLangChainAdapter_GenerateContent(t *testing.T) {
	t.Run("Should apply configured sampling and read usage", func(t *testing.T) {
		model := &scriptedModel{content: "  Paris  "}
		adapter := NewLangChainAdapter(model, &Config{Provider: ProviderGroq, Temperature: 0.2, MaxTokens: 128})
		resp, err := adapter.GenerateContent(context.Background(), &LLMRequest{
			Messages: []Message{{Role: RoleUser, Content: "Capital of France?"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Paris", resp.Content)
		require.NotNil(t, resp.Usage)
		assert.Equal(t, 16, resp.Usage.TotalTokens)
		require.Len(t, model.options, 1)
		assert.InDelta(t, 0.2, model.options[0].Temperature, 1e-9)
		assert.Equal(t, 128, model.options[0].MaxTokens)
	})

	t.Run("Should let request options override the configuration", func(t *testing.T) {
		model := &scriptedModel{content: "ok"}
		adapter := NewLangChainAdapter(model, &Config{Provider: ProviderGroq, Temperature: 0.7})
		zero := 0.0
		_, err := adapter.GenerateContent(context.Background(), &LLMRequest{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
			Options:  CallOptions{Temperature: &zero, MaxTokens: 10},
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.0, model.options[0].Temperature, 1e-9)
		assert.Equal(t, 10, model.options[0].MaxTokens)
	})

	t.Run("Should reject requests without messages", func(t *testing.T) {
		adapter := NewLangChainAdapter(&scriptedModel{}, &Config{Provider: ProviderGroq})
		_, err := adapter.GenerateContent(context.Background(), &LLMRequest{})
		llmErr, ok := IsLLMError(err)
		require.True(t, ok)
		assert.Equal(t, ErrCodeBadRequest, llmErr.Code)
	})
}

func TestMockModel(t *testing.T) {
	t.Run("Should echo the question for reformulation prompts", func(t *testing.T) {
		model := NewMockModel()
		resp, err := model.GenerateContent(context.Background(), []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, "formulate a standalone question which can be understood"),
			llms.TextParts(llms.ChatMessageTypeHuman, "What is its population?"),
		})
		require.NoError(t, err)
		assert.Equal(t, "What is its population?", resp.Choices[0].Content)
		assert.Equal(t, 1, model.Calls())
	})

	t.Run("Should answer from the first context line", func(t *testing.T) {
		model := NewMockModel()
		resp, err := model.GenerateContent(context.Background(), []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, "You are a helpful assistant. Context:\nParis is the capital of France.\nOther"),
			llms.TextParts(llms.ChatMessageTypeHuman, "What is the capital of France?"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Paris is the capital of France.", resp.Choices[0].Content)
	})

	t.Run("Should read inline context from single turn prompts", func(t *testing.T) {
		out, err := NewMockModel().Call(context.Background(),
			"Answer the question in detail based on the following context only: Berlin is in Germany. "+
				"Guidelines for answering: 1. Do not refer to any external sources. Question: Where is Berlin?")
		require.NoError(t, err)
		assert.Equal(t, "Berlin is in Germany.", out)
	})
}
