package llmadapter

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Throttle bounds in-flight model calls and their request rate. A zero
// concurrency or rate disables that limit.
type Throttle struct {
	provider string
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	active   atomic.Int32
	total    atomic.Int64
}

// ThrottleSnapshot reports the current throttle counters.
type ThrottleSnapshot struct {
	ActiveRequests int32
	TotalRequests  int64
}

func NewThrottle(provider string, concurrency int64, requestsPerMinute float64) *Throttle {
	t := &Throttle{provider: provider}
	if concurrency > 0 {
		t.sem = semaphore.NewWeighted(concurrency)
	}
	if requestsPerMinute > 0 {
		burst := int(math.Max(1, math.Ceil(requestsPerMinute/60)))
		t.limiter = rate.NewLimiter(rate.Limit(requestsPerMinute/60), burst)
	}
	return t
}

// Acquire blocks until a slot is free and the rate allows another request.
// The returned release must be called once the request completes.
func (t *Throttle) Acquire(ctx context.Context) (func(), error) {
	if t == nil {
		return func() {}, nil
	}
	if t.sem != nil {
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return nil, t.rejected(err)
		}
	}
	if t.limiter != nil {
		start := time.Now()
		if err := t.limiter.Wait(ctx); err != nil {
			if t.sem != nil {
				t.sem.Release(1)
			}
			return nil, t.rejected(err)
		}
		recordThrottleWait(ctx, t.provider, time.Since(start))
	}
	t.active.Add(1)
	t.total.Add(1)
	var released atomic.Bool
	return func() {
		if !released.CompareAndSwap(false, true) {
			return
		}
		t.active.Add(-1)
		if t.sem != nil {
			t.sem.Release(1)
		}
	}, nil
}

func (t *Throttle) Snapshot() ThrottleSnapshot {
	if t == nil {
		return ThrottleSnapshot{}
	}
	return ThrottleSnapshot{ActiveRequests: t.active.Load(), TotalRequests: t.total.Load()}
}

func (t *Throttle) rejected(err error) error {
	return NewErrorWithCode(
		ErrCodeRateLimit,
		fmt.Sprintf("waiting for %s request slot: %v", t.provider, err),
		t.provider,
		err,
	)
}
