package nerdgraph

import (
	"context"
	"time"
)

// RetryPolicy controls how many times an operation is attempted and how
// long to wait between attempts.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy mirrors the conservative upstream defaults.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  time.Second,
	MaxDelay:   10 * time.Second,
}

// NewRetryPolicy fills zero fields from DefaultRetryPolicy.
func NewRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	policy := DefaultRetryPolicy
	if maxRetries > 0 {
		policy.MaxRetries = maxRetries
	}
	if baseDelay > 0 {
		policy.BaseDelay = baseDelay
	}
	if maxDelay > 0 {
		policy.MaxDelay = maxDelay
	}
	return &policy
}

// Do executes fn up to MaxRetries+1 times. Rate-limit errors back off on a
// steeper curve than generic transient errors; permanent errors propagate
// immediately. The last observed error is returned with its classification
// intact once attempts are exhausted.
func (p *RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p == nil {
		p = &DefaultRetryPolicy
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxRetries {
			break
		}
		if err := p.sleep(ctx, p.Delay(attempt, IsRateLimited(lastErr))); err != nil {
			return err
		}
	}
	return lastErr
}

// Delay computes the backoff before re-attempting after the zero-indexed
// attempt. Rate-limited failures double from a four-times-higher floor.
func (p *RetryPolicy) Delay(attempt int, rateLimited bool) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryPolicy.BaseDelay
	}
	max := p.MaxDelay
	if max <= 0 {
		max = DefaultRetryPolicy.MaxDelay
	}

	exponent := attempt
	if rateLimited {
		exponent += 2
	}

	delay := base
	for i := 0; i < exponent; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func (p *RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
