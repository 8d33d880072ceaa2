// Package retry implements the engine's exponential-backoff-with-jitter
// policy for indexer calls (spec §4.K), wrapping the real
// cenkalti/backoff/v4 library rather than reimplementing the
// calculateBackoff-style jittered-exponential algorithm wyf-ACCEPT-eth2030's
// pkg/p2p/request_manager.go hand-rolls.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config mirrors the spec §6 retry configuration block.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	CapDelay   time.Duration
	Jitter     float64
}

// DefaultConfig matches spec §4.K's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 5,
		BaseDelay:  1000 * time.Millisecond,
		CapDelay:   30 * time.Second,
		Jitter:     0.3,
	}
}

// RateLimited is the error an operation must return (wrapped or direct) to
// signal a 429 response; RetryAfter, if non-zero, overrides the computed
// backoff delay for the next attempt, capped to Config.CapDelay.
type RateLimited struct {
	RetryAfter time.Duration
}

func (e *RateLimited) Error() string { return "retry: rate limited" }

// Unavailable marks a non-retryable indexer failure (5xx, network) per
// the spec's conservative "no retry on non-429" choice (§9, §7).
type Unavailable struct {
	Err error
}

func (e *Unavailable) Error() string  { return "retry: indexer unavailable: " + e.Err.Error() }
func (e *Unavailable) Unwrap() error { return e.Err }

// Do runs fn under the configured backoff policy. Any error that is not a
// *RateLimited is treated as permanent and returned immediately without
// further attempts (spec §9's conservative indexer-error policy).
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.MaxInterval = cfg.CapDelay
	b.Multiplier = 2.0
	b.RandomizationFactor = cfg.Jitter
	b.MaxElapsedTime = 0 // bounded by MaxRetries via WithMaxRetries below

	bounded := backoff.WithMaxRetries(b, uint64(cfg.MaxRetries))
	withCtx := backoff.WithContext(bounded, ctx)

	var rl *RateLimited
	operation := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.As(err, &rl) {
			if rl.RetryAfter > 0 {
				delay := rl.RetryAfter
				if delay > cfg.CapDelay {
					delay = cfg.CapDelay
				}
				// Override the computed interval for this attempt only,
				// per spec §4.K's Retry-After honoring rule.
				return backoff.RetryAfter(int(delay.Seconds()))
			}
			return err // retryable, let the policy's own backoff apply
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(operation, withCtx)
}
