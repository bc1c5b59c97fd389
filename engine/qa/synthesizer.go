package qa

import (
	"context"
	"errors"
	"strings"

	"github.com/compozy/docqa/engine/knowledge/retriever"
	llmadapter "github.com/compozy/docqa/engine/llm/adapter"
)

// Synthesizer produces grounded answers from retrieved chunks with exactly one
// model call.
type Synthesizer struct {
	llm Generator
}

// NewSynthesizer returns a Synthesizer backed by llm.
func NewSynthesizer(llm Generator) (*Synthesizer, error) {
	if llm == nil {
		return nil, errors.New("qa: synthesizer requires a generator")
	}
	return &Synthesizer{llm: llm}, nil
}

// Synthesize answers a conversational question. The context goes into the
// system instruction and history precedes the question.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	question string,
	chunks []retriever.Result,
	history []ChatTurn,
) (string, error) {
	messages := historyMessages(history)
	messages = append(messages, llmadapter.Message{Role: llmadapter.RoleUser, Content: question})
	out, err := generate(ctx, s.llm, "synthesize", &llmadapter.LLMRequest{
		SystemPrompt: renderAnswerSystemPrompt(BuildContext(chunks)),
		Messages:     messages,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// SynthesizeSingle answers a standalone question with the single turn prompt.
func (s *Synthesizer) SynthesizeSingle(ctx context.Context, question string, chunks []retriever.Result) (string, error) {
	out, err := generate(ctx, s.llm, "synthesize", &llmadapter.LLMRequest{
		Messages: []llmadapter.Message{{
			Role:    llmadapter.RoleUser,
			Content: renderSingleTurnPrompt(BuildContext(chunks), question),
		}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
