package provider

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryReasoner bounds every call with a timeout and retries transient
// failures with exponential backoff.
type RetryReasoner struct {
	inner      Reasoner
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
}

var _ Reasoner = (*RetryReasoner)(nil)

// WithAttemptTimeout wraps r so that no single call outlives d. A zero d
// disables the bound.
func WithAttemptTimeout(r Reasoner, d time.Duration) *RetryReasoner {
	return &RetryReasoner{inner: r, timeout: d, baseDelay: 500 * time.Millisecond}
}

// WithRetries sets how many extra tries quota and network failures get.
func (r *RetryReasoner) WithRetries(n int) *RetryReasoner {
	if n < 0 {
		n = 0
	}
	r.maxRetries = n
	return r
}

func (r *RetryReasoner) Generate(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		text, err := r.once(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == r.maxRetries || ctx.Err() != nil {
			break
		}
		if err := r.backoff(ctx, attempt); err != nil {
			return "", lastErr
		}
	}
	if r.maxRetries > 0 && isRetryable(lastErr) {
		return "", fmt.Errorf("after %d retries: %w", r.maxRetries, lastErr)
	}
	return "", lastErr
}

func (r *RetryReasoner) once(ctx context.Context, req Request) (string, error) {
	if r.timeout <= 0 {
		return r.inner.Generate(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.inner.Generate(ctx, req)
}

func isRetryable(err error) bool {
	switch Classify(err) {
	case KindQuota, KindNetwork:
		return true
	}
	return false
}

func (r *RetryReasoner) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(float64(r.baseDelay) * math.Pow(2, float64(attempt)))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
