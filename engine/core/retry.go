package core

import (
	"time"

	"github.com/sethvargo/go-retry"
)

const maxRetryAttempts = 100

// RetryPolicy bounds the retries around one external call.
type RetryPolicy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Strategy returns an exponential backoff that allows Attempts calls in total.
func (p RetryPolicy) Strategy() retry.Backoff {
	attempts := p.Attempts
	if attempts <= 0 || attempts > maxRetryAttempts {
		attempts = 1
	}
	base := p.Backoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.MaxBackoff > 0 {
		b = retry.WithCappedDuration(p.MaxBackoff, b)
	}
	return retry.WithMaxRetries(uint64(attempts-1), b) // #nosec G115 -- bounded above
}
