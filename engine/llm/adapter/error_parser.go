package llmadapter

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var statusCodePattern = regexp.MustCompile(`(?:status code:?|status|http|error|code)\s*:?\s*([1-5]\d\d)\b`)

var (
	rateLimitPatterns = []string{
		"rate limit", "rate-limit", "ratelimit", "too many requests",
		"throttled", "throttling", "requests per minute", "requests per second",
	}
	unavailablePatterns = []string{
		"service unavailable", "service_unavailable", "temporarily unavailable",
		"overloaded", "try again later",
	}
	authPatterns = []string{
		"unauthorized", "invalid api key", "invalid_api_key", "api key not valid",
		"authentication", "permission denied",
	}
	timeoutPatterns = []string{
		"timeout", "timed out", "deadline exceeded",
	}
	connectionPatterns = []string{
		"connection reset", "connection refused", "connection failed",
		"network error", "no such host", "host not found",
	}
)

// ErrorParser classifies raw provider errors by message inspection.
type ErrorParser struct {
	provider string
}

func NewErrorParser(provider string) *ErrorParser {
	return &ErrorParser{provider: provider}
}

// ParseError returns a classified error, or nil when the message matches no
// known pattern.
func (p *ErrorParser) ParseError(err error) *Error {
	if err == nil {
		return nil
	}
	if llmErr, ok := IsLLMError(err); ok {
		return llmErr
	}
	msg := err.Error()
	if llmErr := p.parseJSONBody(msg, err); llmErr != nil {
		return llmErr
	}
	lower := strings.ToLower(msg)
	if status := extractHTTPStatusCode(lower); status > 0 {
		return NewError(status, msg, p.provider, err)
	}
	if llmErr := p.matchProviderPatterns(lower, msg, err); llmErr != nil {
		return llmErr
	}
	return p.matchNetworkPatterns(lower, msg, err)
}

// parseJSONBody handles provider errors that embed the raw response body,
// e.g. {"error":{"message":"...","type":"insufficient_quota","code":429}}.
func (p *ErrorParser) parseJSONBody(msg string, original error) *Error {
	start := strings.Index(msg, "{")
	if start < 0 {
		return nil
	}
	body := msg[start:]
	if !gjson.Valid(body) {
		return nil
	}
	parsed := gjson.Parse(body)
	detail := parsed.Get("error.message")
	if !detail.Exists() {
		detail = parsed.Get("message")
	}
	if !detail.Exists() {
		return nil
	}
	message := detail.String()
	for _, path := range []string{"error.type", "error.status", "error.code"} {
		value := parsed.Get(path)
		if !value.Exists() {
			continue
		}
		if value.Type == gjson.Number {
			if code := int(value.Int()); code >= 400 && code < 600 {
				return NewError(code, message, p.provider, original)
			}
			continue
		}
		switch strings.ToLower(value.String()) {
		case "insufficient_quota", "resource_exhausted":
			return NewErrorWithCode(ErrCodeQuotaExceeded, message, p.provider, original)
		case "rate_limit_exceeded", "rate_limit_error":
			return NewError(http.StatusTooManyRequests, message, p.provider, original)
		case "invalid_api_key", "authentication_error", "unauthenticated":
			return NewError(http.StatusUnauthorized, message, p.provider, original)
		case "model_not_found", "not_found_error":
			return NewErrorWithCode(ErrCodeInvalidModel, message, p.provider, original)
		}
	}
	lower := strings.ToLower(message)
	if llmErr := p.matchProviderPatterns(lower, message, original); llmErr != nil {
		return llmErr
	}
	return nil
}

func extractHTTPStatusCode(lower string) int {
	match := statusCodePattern.FindStringSubmatch(lower)
	if len(match) < 2 {
		return 0
	}
	code, err := strconv.Atoi(match[1])
	if err != nil || code < 400 {
		return 0
	}
	return code
}

func (p *ErrorParser) matchProviderPatterns(lower, msg string, original error) *Error {
	switch strings.ToLower(p.provider) {
	case "openai", "groq":
		if strings.Contains(lower, "insufficient_quota") {
			return NewErrorWithCode(ErrCodeQuotaExceeded, msg, p.provider, original)
		}
	case "google":
		if strings.Contains(lower, "resource_exhausted") || strings.Contains(lower, "quota exceeded") {
			return NewErrorWithCode(ErrCodeQuotaExceeded, msg, p.provider, original)
		}
	}
	if containsAny(lower, rateLimitPatterns) {
		return NewError(http.StatusTooManyRequests, msg, p.provider, original)
	}
	if containsAny(lower, unavailablePatterns) {
		return NewError(http.StatusServiceUnavailable, msg, p.provider, original)
	}
	if containsAny(lower, authPatterns) {
		return NewError(http.StatusUnauthorized, msg, p.provider, original)
	}
	if strings.Contains(lower, "invalid model") || strings.Contains(lower, "model not found") ||
		strings.Contains(lower, "model_not_found") {
		return NewErrorWithCode(ErrCodeInvalidModel, msg, p.provider, original)
	}
	if strings.Contains(lower, "content policy") || strings.Contains(lower, "safety") {
		return NewErrorWithCode(ErrCodeContentPolicy, msg, p.provider, original)
	}
	return nil
}

func (p *ErrorParser) matchNetworkPatterns(lower, msg string, original error) *Error {
	if containsAny(lower, timeoutPatterns) {
		return NewErrorWithCode(ErrCodeTimeout, msg, p.provider, original)
	}
	if containsAny(lower, connectionPatterns) {
		if strings.Contains(lower, "reset") {
			return NewErrorWithCode(ErrCodeConnectionReset, msg, p.provider, original)
		}
		return NewErrorWithCode(ErrCodeConnectionRefused, msg, p.provider, original)
	}
	return nil
}

func containsAny(s string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}
