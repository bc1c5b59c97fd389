package llmadapter

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/llms"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/pkg/logger"
)

// Client is the LLMClient used by the question answering stages. Every call
// goes through the throttle, a per-attempt timeout and the retry policy, and
// failures surface as core.LLMServiceError.
type Client struct {
	cfg      Config
	inner    LLMClient
	throttle *Throttle
	parser   *ErrorParser
}

// NewClient builds a client for the configured provider.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	model, err := createModel(ctx, cfg)
	if err != nil {
		return nil, core.NewLLMServiceError("create client", err)
	}
	return Wrap(cfg, NewLangChainAdapter(model, cfg)), nil
}

// NewClientWithModel builds a client around an existing langchaingo model.
func NewClientWithModel(cfg *Config, model llms.Model) (*Client, error) {
	if cfg == nil || model == nil {
		return nil, errors.New("llm config and model are required")
	}
	return Wrap(cfg, NewLangChainAdapter(model, cfg)), nil
}

// Wrap decorates inner with throttling, retries and error classification.
func Wrap(cfg *Config, inner LLMClient) *Client {
	provider := string(cfg.Provider)
	return &Client{
		cfg:      *cfg,
		inner:    inner,
		throttle: NewThrottle(provider, cfg.Concurrency, cfg.RequestsPerMinute),
		parser:   NewErrorParser(provider),
	}
}

// Throttle exposes the client's request throttle.
func (c *Client) Throttle() *Throttle {
	return c.throttle
}

func (c *Client) GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	return c.generate(ctx, "generate", req)
}

// Generate runs one request labelled with op for logs, metrics and errors.
func (c *Client) Generate(ctx context.Context, op string, req *LLMRequest) (*LLMResponse, error) {
	return c.generate(ctx, op, req)
}

func (c *Client) generate(ctx context.Context, op string, req *LLMRequest) (*LLMResponse, error) {
	log := logger.FromContext(ctx)
	provider := string(c.cfg.Provider)
	attempt := 0
	resp, err := retry.DoValue(ctx, c.cfg.Retry.Strategy(), func(ctx context.Context) (*LLMResponse, error) {
		attempt++
		resp, err := c.attempt(ctx, op, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() == nil {
			if llmErr, ok := IsLLMError(err); ok && llmErr.IsRetryable() {
				log.Warn("LLM call failed, retrying", "provider", provider, "op", op, "attempt", attempt, "error", err)
				return nil, retry.RetryableError(err)
			}
		}
		return nil, err
	})
	if err != nil {
		log.Error("LLM call failed", "provider", provider, "op", op, "attempts", attempt, "error", err)
		return nil, core.NewLLMServiceError(op, err)
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, op string, req *LLMRequest) (*LLMResponse, error) {
	provider := string(c.cfg.Provider)
	release, err := c.throttle.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	callCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := c.inner.GenerateContent(callCtx, req)
	if err != nil {
		recordRequest(ctx, provider, op, "error", time.Since(start))
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, NewErrorWithCode(ErrCodeTimeout, err.Error(), provider, err)
		}
		if parsed := c.parser.ParseError(err); parsed != nil {
			return nil, parsed
		}
		return nil, err
	}
	recordRequest(ctx, provider, op, "success", time.Since(start))
	recordTokens(ctx, provider, resp.Usage)
	return resp, nil
}

func (c *Client) Close() error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
