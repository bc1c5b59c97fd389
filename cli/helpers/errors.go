package helpers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/docqa/pkg/config"
)

// CliError is a categorized command failure printed to the user.
type CliError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   string         `json:"details,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (e *CliError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewCliError(code, message string, details ...string) *CliError {
	err := &CliError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]any),
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// WithContext adds context to the error
func (e *CliError) WithContext(key string, value any) *CliError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Categorize converts well known failures into CLI errors. Unknown errors
// are returned unchanged.
func Categorize(err error) error {
	var cliErr *CliError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &cliErr):
		return cliErr
	case errors.Is(err, context.Canceled):
		return NewCliError("OPERATION_CANCELED", "Operation was canceled by user")
	case errors.Is(err, context.DeadlineExceeded):
		return NewCliError("OPERATION_TIMEOUT", "Operation timed out")
	case errors.Is(err, config.ErrMissingCredential):
		return NewCliError("MISSING_CREDENTIALS", "Required provider credentials are not set", err.Error())
	case errors.Is(err, ErrPortUnavailable):
		return NewCliError("PORT_UNAVAILABLE", "Server port is already in use", err.Error())
	default:
		return err
	}
}
