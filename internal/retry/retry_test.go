package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ccoin/shieldengine/internal/retry"
)

func fastConfig() retry.Config {
	return retry.Config{
		MaxRetries: 5,
		BaseDelay:  1 * time.Millisecond,
		CapDelay:   10 * time.Millisecond,
		Jitter:     0.1,
	}
}

func TestDoRetriesOnRateLimited(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &retry.RateLimited{}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestDoDoesNotRetryNonRateLimitedErrors(t *testing.T) {
	attempts := 0
	sentinel := errors.New("boom")
	err := retry.Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		attempts++
		return &retry.Unavailable{Err: sentinel}
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.ErrorIs(t, err, sentinel)
}

func TestDoRetriesRateLimitedWithoutRetryAfter(t *testing.T) {
	attempts := 0
	start := time.Now()
	err := retry.Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return &retry.RateLimited{RetryAfter: 0}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.True(t, time.Since(start) >= 0)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Do(ctx, fastConfig(), func(ctx context.Context) error {
		return &retry.RateLimited{}
	})
	require.Error(t, err)
}
