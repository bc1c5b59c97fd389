package qa

import (
	"context"
	"errors"
	"strings"

	llmadapter "github.com/compozy/docqa/engine/llm/adapter"
	"github.com/compozy/docqa/pkg/logger"
)

// Reformulator rewrites follow-up questions into standalone queries.
type Reformulator struct {
	llm Generator
}

// NewReformulator returns a Reformulator backed by llm.
func NewReformulator(llm Generator) (*Reformulator, error) {
	if llm == nil {
		return nil, errors.New("qa: reformulator requires a generator")
	}
	return &Reformulator{llm: llm}, nil
}

// Reformulate returns question unchanged, without calling the model, when
// history is empty. A blank model reply also falls back to question.
func (r *Reformulator) Reformulate(ctx context.Context, question string, history []ChatTurn) (string, error) {
	if len(history) == 0 {
		return question, nil
	}
	messages := historyMessages(history)
	messages = append(messages, llmadapter.Message{Role: llmadapter.RoleUser, Content: question})
	out, err := generate(ctx, r.llm, "reformulate", &llmadapter.LLMRequest{
		SystemPrompt: reformulationPrompt,
		Messages:     messages,
	})
	if err != nil {
		return "", err
	}
	standalone := strings.TrimSpace(out)
	if standalone == "" {
		return question, nil
	}
	logger.FromContext(ctx).Debug("Question reformulated", "question", question, "standalone", standalone)
	return standalone, nil
}
