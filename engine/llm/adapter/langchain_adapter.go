package llmadapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainAdapter exposes a langchaingo model as an LLMClient.
type LangChainAdapter struct {
	model       llms.Model
	provider    Provider
	temperature float64
	maxTokens   int
}

// NewLangChainAdapter wraps an existing langchaingo model.
func NewLangChainAdapter(model llms.Model, cfg *Config) *LangChainAdapter {
	return &LangChainAdapter{
		model:       model,
		provider:    cfg.Provider,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func createModel(ctx context.Context, cfg *Config) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderGroq:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = GroqBaseURL
		}
		return openai.New(
			openai.WithModel(cfg.Model),
			openai.WithBaseURL(baseURL),
			openai.WithToken(cfg.APIKey),
		)
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(cfg.Model), openai.WithToken(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case ProviderGoogle:
		return googleai.New(ctx,
			googleai.WithDefaultModel(cfg.Model),
			googleai.WithAPIKey(cfg.APIKey),
		)
	case ProviderMock:
		return NewMockModel(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func (a *LangChainAdapter) GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	if req == nil {
		return nil, errors.New("llm request is required")
	}
	messages := a.convertMessages(req)
	if len(messages) == 0 {
		return nil, NewErrorWithCode(ErrCodeBadRequest, "request has no messages", string(a.provider), nil)
	}
	resp, err := a.model.GenerateContent(ctx, messages, a.buildCallOptions(req)...)
	if err != nil {
		return nil, err
	}
	return a.convertResponse(resp)
}

func (a *LangChainAdapter) Close() error {
	return nil
}

func (a *LangChainAdapter) convertMessages(req *LLMRequest) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		messages = append(messages, llms.TextParts(mapMessageRole(msg.Role), msg.Content))
	}
	return messages
}

func mapMessageRole(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func (a *LangChainAdapter) buildCallOptions(req *LLMRequest) []llms.CallOption {
	temperature := a.temperature
	if req.Options.Temperature != nil {
		temperature = *req.Options.Temperature
	}
	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	maxTokens := a.maxTokens
	if req.Options.MaxTokens > 0 {
		maxTokens = req.Options.MaxTokens
	}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	return opts
}

func (a *LangChainAdapter) convertResponse(resp *llms.ContentResponse) (*LLMResponse, error) {
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, NewErrorWithCode(ErrCodeEmptyResponse, "model returned no choices", string(a.provider), nil)
	}
	choice := resp.Choices[0]
	return &LLMResponse{
		Content: strings.TrimSpace(choice.Content),
		Usage:   extractUsage(choice.GenerationInfo),
	}, nil
}

func extractUsage(info map[string]any) *Usage {
	if len(info) == 0 {
		return nil
	}
	usage := &Usage{
		PromptTokens:     intValue(info["PromptTokens"]),
		CompletionTokens: intValue(info["CompletionTokens"]),
		TotalTokens:      intValue(info["TotalTokens"]),
	}
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 && usage.TotalTokens == 0 {
		return nil
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
