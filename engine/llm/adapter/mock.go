package llmadapter

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

const (
	standaloneMarker   = "standalone question"
	contextMarker      = "context:"
	inlineContextStart = "following context only:"
	inlineContextEnd   = "guidelines for answering:"
)

// MockModel is an offline llms.Model. Reformulation requests echo the latest
// question and answer requests return the first line of the supplied context.
type MockModel struct {
	mu    sync.Mutex
	calls [][]llms.MessageContent
}

func NewMockModel() *MockModel {
	return &MockModel{}
}

func (m *MockModel) GenerateContent(
	_ context.Context,
	messages []llms.MessageContent,
	_ ...llms.CallOption,
) (*llms.ContentResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, messages)
	m.mu.Unlock()
	var system, question string
	for _, msg := range messages {
		text := messageText(msg)
		switch msg.Role {
		case llms.ChatMessageTypeSystem:
			system = text
		case llms.ChatMessageTypeHuman:
			question = text
		}
	}
	answer := question
	if !strings.Contains(strings.ToLower(system), standaloneMarker) {
		if excerpt := contextExcerpt(system + "\n" + question); excerpt != "" {
			answer = excerpt
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: answer, StopReason: "stop"}}}, nil
}

func (m *MockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns the number of requests served.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func messageText(msg llms.MessageContent) string {
	var b strings.Builder
	for _, part := range msg.Parts {
		if text, ok := part.(llms.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

func contextExcerpt(prompt string) string {
	lower := strings.ToLower(prompt)
	var body string
	if start := strings.Index(lower, inlineContextStart); start >= 0 {
		body = prompt[start+len(inlineContextStart):]
		if end := strings.Index(strings.ToLower(body), inlineContextEnd); end >= 0 {
			body = body[:end]
		}
	} else if start := strings.Index(lower, contextMarker); start >= 0 {
		body = prompt[start+len(contextMarker):]
	}
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
