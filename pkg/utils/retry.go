package utils

import (
	"context"
	"math"
	"time"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts   int // total attempts, including the first
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Retryable reports whether an error is worth another attempt. Nil retries every error.
	Retryable func(error) bool
	// OnRetry is called before sleeping ahead of attempt number next.
	OnRetry func(next int, delay time.Duration, err error)
}

// DefaultRetryConfig returns the default retry configuration: one retry
// after 500ms, doubling up to 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Retry executes a function with exponential backoff retry.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes a function with exponential backoff retry and returns a result.
// Non-retryable errors are returned immediately.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, err
		}

		// Don't sleep after the last attempt
		if attempt == attempts-1 {
			break
		}

		delay := CalculateBackoff(attempt, cfg.InitialDelay, cfg.MaxDelay, cfg.BackoffFactor)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+2, delay, err)
		}
		if err := Sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// CalculateBackoff calculates the backoff duration for a given attempt.
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		factor = 1
	}
	delay := float64(initialDelay) * math.Pow(factor, float64(attempt))
	if maxDelay > 0 && delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	return time.Duration(delay)
}
