package llmadapter

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for failures that carry no HTTP status.
const (
	ErrCodeRateLimit         = "RATE_LIMIT"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeConnectionReset   = "CONNECTION_RESET"
	ErrCodeConnectionRefused = "CONNECTION_REFUSED"
	ErrCodeQuotaExceeded     = "QUOTA_EXCEEDED"
	ErrCodeInvalidModel      = "INVALID_MODEL"
	ErrCodeContentPolicy     = "CONTENT_POLICY"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeServerError       = "SERVER_ERROR"
	ErrCodeEmptyResponse     = "EMPTY_RESPONSE"
)

// Error is a classified provider failure.
type Error struct {
	Code       string
	StatusCode int
	Message    string
	Provider   string
	Err        error
}

// NewError classifies a failure by its HTTP status.
func NewError(statusCode int, message, provider string, err error) *Error {
	return &Error{
		Code:       codeForStatus(statusCode),
		StatusCode: statusCode,
		Message:    message,
		Provider:   provider,
		Err:        err,
	}
}

// NewErrorWithCode classifies a failure by an explicit code.
func NewErrorWithCode(code, message, provider string, err error) *Error {
	return &Error{Code: code, Message: message, Provider: provider, Err: err}
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another attempt may succeed.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrCodeRateLimit, ErrCodeTimeout, ErrCodeConnectionReset, ErrCodeConnectionRefused, ErrCodeServerError:
		return true
	}
	return false
}

// IsLLMError extracts an *Error from err's chain.
func IsLLMError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeUnauthorized
	case status == http.StatusNotFound:
		return ErrCodeInvalidModel
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeBadRequest
	}
}
