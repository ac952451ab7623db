package nerdgraph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTimeline drives the limiter with a manual clock whose sleeps advance
// time instead of blocking.
type fakeTimeline struct {
	mu     sync.Mutex
	now    time.Time
	slept  []time.Duration
	cancel context.CancelFunc
}

func newFakeTimeline() *fakeTimeline {
	return &fakeTimeline{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeTimeline) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTimeline) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slept = append(f.slept, d)
	f.now = f.now.Add(d)
	return ctx.Err()
}

func (f *fakeTimeline) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeTimeline) TotalSlept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total time.Duration
	for _, d := range f.slept {
		total += d
	}
	return total
}

func newTestLimiter(limit RateLimit, timeline *fakeTimeline) *RateLimiter {
	limiter := NewRateLimiter(limit)
	limiter.Clock = timeline.Now
	limiter.Sleep = timeline.Sleep
	return limiter
}

func TestRateLimiterAdmitsUnderLimit(t *testing.T) {
	timeline := newFakeTimeline()
	limiter := newTestLimiter(RateLimit{MaxRequests: 3, Interval: time.Minute}, timeline)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Wait(context.Background()))
	}
	require.Empty(t, timeline.slept)
	require.Equal(t, 3, limiter.Pending())
}

func TestRateLimiterBlocksUntilOldestAdmissionExpires(t *testing.T) {
	timeline := newFakeTimeline()
	limiter := newTestLimiter(RateLimit{MaxRequests: 2, Interval: time.Minute}, timeline)

	require.NoError(t, limiter.Wait(context.Background()))
	timeline.Advance(10 * time.Second)
	require.NoError(t, limiter.Wait(context.Background()))

	// The window is full; the third call must wait until the first
	// admission ages out, 50 seconds from now.
	require.NoError(t, limiter.Wait(context.Background()))
	require.Equal(t, 50*time.Second, timeline.TotalSlept())
	require.Equal(t, 2, limiter.Pending())
}

func TestRateLimiterWindowSlides(t *testing.T) {
	timeline := newFakeTimeline()
	limiter := newTestLimiter(RateLimit{MaxRequests: 2, Interval: time.Minute}, timeline)

	require.NoError(t, limiter.Wait(context.Background()))
	require.NoError(t, limiter.Wait(context.Background()))

	timeline.Advance(61 * time.Second)

	require.NoError(t, limiter.Wait(context.Background()))
	require.Empty(t, timeline.slept)
	require.Equal(t, 1, limiter.Pending())
}

func TestRateLimiterRespectsContext(t *testing.T) {
	timeline := newFakeTimeline()
	limiter := newTestLimiter(RateLimit{MaxRequests: 1, Interval: time.Minute}, timeline)

	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := limiter.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRateLimiterDefaults(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{})
	require.Equal(t, DefaultRateLimit.MaxRequests, limiter.limit.MaxRequests)
	require.Equal(t, DefaultRateLimit.Interval, limiter.limit.Interval)
}
