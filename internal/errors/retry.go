package errors

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures retry behavior.
// The zero Multiplier (or 1.0) means a flat delay between attempts;
// a larger Multiplier grows the delay exponentially, capped at MaxDelay.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay is the wait between attempts.
	Delay time.Duration

	// MaxDelay is the maximum delay between attempts. Zero means no cap.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each attempt.
	// Values <= 1.0 keep the delay flat.
	Multiplier float64
}

// FixedRetryConfig returns the retry policy used for outbound model calls:
// 3 attempts total with a flat 1-second delay, no backoff or jitter.
func FixedRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Delay:       1 * time.Second,
		Multiplier:  1.0,
	}
}

// Retry executes a function with the given retry policy.
// It runs fn up to MaxAttempts times, waiting Delay between attempts.
// If the context is cancelled, it returns the context error immediately.
// After exhausting attempts, the last error is returned wrapped.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes a function that returns a value with retry logic.
// Similar to Retry but for functions that return both a result and an error.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	delay := cfg.Delay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		// If this was the last attempt, don't wait
		if attempt >= cfg.MaxAttempts {
			break
		}

		// Wait before retrying (with context cancellation support)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		// Grow the delay if a multiplier is configured
		if cfg.Multiplier > 1.0 {
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
