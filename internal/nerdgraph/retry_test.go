package nerdgraph

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func instantSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestRetrySucceedsAfterRateLimits(t *testing.T) {
	var delays []time.Duration
	policy := &RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Sleep: instantSleep(&delays)}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return &RateLimitError{Message: "slow down"}
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
	// Rate-limited attempts back off from a four-times-higher floor:
	// min(1s*2^(0+2), 10s) = 4s, then min(1s*2^(1+2), 10s) = 8s.
	require.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second}, delays)
}

func TestRetryGenericBackoffCurve(t *testing.T) {
	var delays []time.Duration
	policy := &RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Sleep: instantSleep(&delays)}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &TransportError{Err: errors.New("connection reset")}
	})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, 4, calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
}

func TestRetryClientErrorPropagatesImmediately(t *testing.T) {
	var delays []time.Duration
	policy := &RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Sleep: instantSleep(&delays)}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &APIError{StatusCode: http.StatusBadRequest, Body: "bad request"}
	})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, 1, calls)
	require.Empty(t, delays)
}

func TestRetryMutationErrorNotRetried(t *testing.T) {
	policy := NewRetryPolicy(3, time.Second, 10*time.Second)
	policy.Sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("mutation errors must not trigger backoff")
		return nil
	}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &MutationError{Operation: "dashboardCreate", Errors: []MutationErrorDetail{{Description: "invalid widget"}}}
	})

	var mutErr *MutationError
	require.ErrorAs(t, err, &mutErr)
	require.Equal(t, 1, calls)
}

func TestRetryExhaustionPreservesClassification(t *testing.T) {
	var delays []time.Duration
	policy := &RetryPolicy{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Sleep: instantSleep(&delays)}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &RateLimitError{Message: "still limited"}
	})

	require.True(t, IsRateLimited(err))
	require.Equal(t, 3, calls)
	require.Len(t, delays, 2)
}

func TestRetryDelayCapsAtMax(t *testing.T) {
	policy := &RetryPolicy{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	require.Equal(t, 10*time.Second, policy.Delay(6, false))
	require.Equal(t, 10*time.Second, policy.Delay(2, true))
	require.Equal(t, 2*time.Second, policy.Delay(1, false))
	require.Equal(t, 8*time.Second, policy.Delay(1, true))
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	policy := &RetryPolicy{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := policy.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return &TransportError{Err: errors.New("flaky")}
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
