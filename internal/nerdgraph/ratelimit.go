package nerdgraph

import (
	"context"
	"sync"
	"time"
)

// RateLimit configures a sliding admission window.
type RateLimit struct {
	MaxRequests int
	Interval    time.Duration
}

// DefaultRateLimit matches the documented NerdGraph request budget.
var DefaultRateLimit = RateLimit{MaxRequests: 25, Interval: time.Minute}

// RateLimiter bounds outgoing requests to MaxRequests per rolling Interval.
// Admissions are recorded as timestamps; Wait blocks until the oldest one
// ages out of the window. Safe for concurrent use.
type RateLimiter struct {
	mu         sync.Mutex
	limit      RateLimit
	admissions []time.Time

	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter. Non-positive fields fall back to
// DefaultRateLimit.
func NewRateLimiter(limit RateLimit) *RateLimiter {
	if limit.MaxRequests <= 0 {
		limit.MaxRequests = DefaultRateLimit.MaxRequests
	}
	if limit.Interval <= 0 {
		limit.Interval = DefaultRateLimit.Interval
	}
	return &RateLimiter{limit: limit}
}

// Wait blocks until a request may be admitted, then records the admission.
// Returns the context error if ctx is cancelled while waiting.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		admitted, wait := r.tryAdmit()
		if admitted {
			return nil
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Pending returns the number of admissions still inside the window.
func (r *RateLimiter) Pending() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(r.now())
	return len(r.admissions)
}

// tryAdmit admits immediately when the window has room, otherwise reports
// how long until the oldest admission expires.
func (r *RateLimiter) tryAdmit() (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.prune(now)

	if len(r.admissions) < r.limit.MaxRequests {
		r.admissions = append(r.admissions, now)
		return true, 0
	}

	wait := r.admissions[0].Add(r.limit.Interval).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return false, wait
}

// prune drops admissions older than the window. Caller holds the lock.
func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.limit.Interval)
	idx := 0
	for idx < len(r.admissions) && !r.admissions[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		r.admissions = append(r.admissions[:0], r.admissions[idx:]...)
	}
}

func (r *RateLimiter) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

func (r *RateLimiter) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
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
