package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tripsmith-ai/tripsmith/core"
)

// RetryConfig shapes the backoff schedule used by Retry.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryConfig is three attempts spread over roughly half a second.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// backoff returns the pause before the next try. attempt counts the tries
// already made, starting at 1, so the first pause is always InitialDelay.
func (c *RetryConfig) backoff(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.BackoffFactor)
		if delay >= c.MaxDelay {
			delay = c.MaxDelay
			break
		}
	}
	if c.JitterEnabled {
		// Deterministic +-10% swing, enough to stagger callers that
		// started in lockstep without pulling in a rand source.
		delay += time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
	}
	return delay
}

// Retry runs fn until it succeeds, the context ends, or the attempt budget
// is spent. Exhaustion wraps core.ErrMaxRetriesExceeded around the last
// failure; context errors pass through untouched.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt >= config.MaxAttempts {
			return fmt.Errorf("max retry attempts (%d) exceeded for %v: %w",
				config.MaxAttempts, lastErr, core.ErrMaxRetriesExceeded)
		}

		timer := time.NewTimer(config.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
