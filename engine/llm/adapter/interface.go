package llmadapter

import "context"

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LLMClient generates chat completions.
type LLMClient interface {
	GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
	Close() error
}

// LLMRequest is one chat completion request. SystemPrompt, when set, is sent
// ahead of Messages.
type LLMRequest struct {
	SystemPrompt string
	Messages     []Message
	Options      CallOptions
}

type Message struct {
	Role    string
	Content string
}

// CallOptions overrides the client's configured sampling for one request.
type CallOptions struct {
	Temperature *float64
	MaxTokens   int
}

type LLMResponse struct {
	Content string
	Usage   *Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
