package qa

import (
	"context"

	"github.com/compozy/docqa/engine/core"
	llmadapter "github.com/compozy/docqa/engine/llm/adapter"
)

// Generator runs one labelled chat model request.
type Generator interface {
	Generate(ctx context.Context, op string, req *llmadapter.LLMRequest) (*llmadapter.LLMResponse, error)
}

func generate(ctx context.Context, llm Generator, op string, req *llmadapter.LLMRequest) (string, error) {
	resp, err := llm.Generate(ctx, op, req)
	if err != nil {
		if core.IsLLMService(err) {
			return "", err
		}
		return "", core.NewLLMServiceError(op, err)
	}
	if resp == nil {
		return "", core.NewLLMServiceError(op, nil)
	}
	return resp.Content, nil
}

func historyMessages(history []ChatTurn) []llmadapter.Message {
	messages := make([]llmadapter.Message, 0, len(history)+1)
	for _, turn := range history {
		role := llmadapter.RoleAssistant
		if turn.Role == RoleHuman {
			role = llmadapter.RoleUser
		}
		messages = append(messages, llmadapter.Message{Role: role, Content: turn.Content})
	}
	return messages
}
