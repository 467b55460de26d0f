package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	tests := map[float64]string{
		0:          "0.00",
		999.5:      "999.50",
		1234.5:     "1,234.50",
		-1234567.1: "-1,234,567.10",
		100000:     "100,000.00",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatMoney(in), "FormatMoney(%v)", in)
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "+4.20%", FormatPercent(4.2))
	assert.Equal(t, "-1.00%", FormatPercent(-1))
	assert.Equal(t, "0.00%", FormatPercent(0))
	assert.Equal(t, "+25.00%", FormatRatio(0.25))
	assert.Equal(t, "1.50M", FormatCompact(1.5e6))
}

func TestCalculateBackoff(t *testing.T) {
	first := 500 * time.Millisecond
	ceiling := 5 * time.Second
	assert.Equal(t, 500*time.Millisecond, CalculateBackoff(0, first, ceiling, 2))
	assert.Equal(t, time.Second, CalculateBackoff(1, first, ceiling, 2))
	assert.Equal(t, 4*time.Second, CalculateBackoff(3, first, ceiling, 2))
	assert.Equal(t, 5*time.Second, CalculateBackoff(4, first, ceiling, 2))
}

var errFlaky = errors.New("flaky")

func TestRetryWithResult(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	v, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errFlaky
		}
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)

	calls = 0
	_, err = RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	var retried []int
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return errors.Is(err, errFlaky) },
		OnRetry:      func(next int, _ time.Duration, _ error) { retried = append(retried, next) },
	}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls == 1 {
			return errFlaky
		}
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{2}, retried)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 2}
	calls := 0
	start := time.Now()
	err := Retry(ctx, cfg, func() error { calls++; return errFlaky })
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}
