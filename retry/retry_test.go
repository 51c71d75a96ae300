package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts:       maxAttempts,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Millisecond,
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	attempts := 0

	err := fastPolicy(5).Do(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0

	err := fastPolicy(5).Do(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return NewTransientError(errors.New("connection reset"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	underlying := errors.New("service unavailable")

	err := fastPolicy(5).Do(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		return NewTransientError(underlying)
	})

	require.Error(t, err)
	assert.Equal(t, 5, attempts)
	assert.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "after 5 attempts")
}

func TestDo_FatalShortCircuits(t *testing.T) {
	attempts := 0
	underlying := errors.New("invalid api key")

	err := fastPolicy(5).Do(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		return NewFatalError(underlying)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, underlying)
}

func TestDo_UnclassifiedErrorIsRetried(t *testing.T) {
	attempts := 0

	err := fastPolicy(3).Do(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		return errors.New("something went wrong")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_OnRetryCalledPerWait(t *testing.T) {
	var notified []int

	p := fastPolicy(3)
	p.OnRetry = func(name string, attempt int) {
		assert.Equal(t, "op", name)
		notified = append(notified, attempt)
	}

	err := p.Do(context.Background(), "op", func(ctx context.Context) error {
		return NewTransientError(errors.New("unavailable"))
	})

	require.Error(t, err)
	// No callback after the final attempt; there is no wait to precede.
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDo_ReturnsValue(t *testing.T) {
	got, err := Do(context.Background(), fastPolicy(3), "op", func(ctx context.Context) (string, error) {
		return "hello", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	p := Policy{
		MaxAttempts:       5,
		BackoffBase:       10 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        60 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	err := p.Do(ctx, "op", func(ctx context.Context) error {
		attempts++
		return NewTransientError(errors.New("timeout"))
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetryAfterHintOverridesBackoff(t *testing.T) {
	// The computed backoff would be far too long for the test; the server
	// hint must take precedence.
	p := Policy{
		MaxAttempts:       2,
		BackoffBase:       time.Hour,
		BackoffMultiplier: 2.0,
		MaxBackoff:        time.Hour,
	}

	attempts := 0
	start := time.Now()
	err := p.Do(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return NewRateLimitError(errors.New("rate limited"), 5*time.Millisecond)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestBackoffSchedule(t *testing.T) {
	p := Policy{
		MaxAttempts:       5,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        60 * time.Second,
	}

	// Delay after attempt n is min(base * 2^(n-1), max).
	assert.Equal(t, 1*time.Second, p.backoff(1))
	assert.Equal(t, 2*time.Second, p.backoff(2))
	assert.Equal(t, 4*time.Second, p.backoff(3))
	// Delay before the 5th attempt.
	assert.Equal(t, 8*time.Second, p.backoff(4))
	// Ceiling kicks in regardless of attempt count.
	assert.Equal(t, 60*time.Second, p.backoff(7))
	assert.Equal(t, 60*time.Second, p.backoff(20))
}

func TestBackoffJitterBounds(t *testing.T) {
	p := Policy{
		MaxAttempts:       5,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        60 * time.Second,
		Jitter:            0.25,
	}

	for i := 0; i < 100; i++ {
		b := p.backoff(4) // nominal 8s
		assert.GreaterOrEqual(t, b, 6*time.Second)
		assert.LessOrEqual(t, b, 10*time.Second)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BackoffBase)
	assert.Equal(t, 60*time.Second, p.MaxBackoff)
}
