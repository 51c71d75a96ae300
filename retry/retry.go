// Package retry provides bounded retry with exponential backoff for
// outbound calls. Operations classify their failures as transient or fatal
// via NewTransientError/NewFatalError; fatal failures short-circuit, and
// unclassified errors are treated as transient.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Policy holds retry configuration for outbound calls. A Policy is
// stateless across invocations; each Do call starts a fresh attempt counter.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BackoffBase is the delay before the second attempt.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to the delay on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the delay between attempts regardless of attempt count.
	MaxBackoff time.Duration

	// Jitter is the fraction of the computed backoff applied as random
	// +/- noise. Zero disables jitter.
	Jitter float64

	// Logger receives per-attempt diagnostics. Nil uses slog.Default().
	Logger *slog.Logger

	// OnRetry, when set, is called before each retry wait. Used for
	// instrumentation.
	OnRetry func(name string, attempt int)
}

// DefaultPolicy returns sensible retry defaults for outbound API calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       5,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        60 * time.Second,
		Jitter:            0.25,
	}
}

// Do executes op, retrying transient failures with exponential backoff
// until it succeeds, a fatal failure occurs, the context is cancelled, or
// attempts are exhausted. The name is used only for log output.
func (p Policy) Do(ctx context.Context, name string, op func(context.Context) error) error {
	_, err := Do(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do executes op under the given policy and returns its value. It is the
// value-returning counterpart of Policy.Do.
func Do[T any](ctx context.Context, p Policy, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retry",
					"operation", name,
					"attempt", attempt)
			}
			return result, nil
		}

		lastErr = err

		if IsFatal(err) {
			logger.Warn("Operation failed with non-retryable error",
				"operation", name,
				"attempt", attempt,
				"error", err)
			return zero, err
		}

		if attempt == p.MaxAttempts {
			break
		}

		backoff := p.backoff(attempt)
		if hint := retryAfterHint(err); hint > 0 {
			backoff = hint
		}

		if p.OnRetry != nil {
			p.OnRetry(name, attempt)
		}

		logger.Warn("Operation failed, retrying",
			"operation", name,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"backoff", backoff,
			"error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
	}

	logger.Error("Operation failed, attempts exhausted",
		"operation", name,
		"attempts", p.MaxAttempts,
		"error", lastErr)

	return zero, fmt.Errorf("%s failed after %d attempts: %w", name, p.MaxAttempts, lastErr)
}

// backoff computes the delay after the given attempt number (1-based),
// applying the multiplier, the ceiling, and jitter. Jitter prevents
// thundering herd when multiple clients retry simultaneously.
func (p Policy) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= p.BackoffMultiplier
	}

	backoff := time.Duration(float64(p.BackoffBase) * multiplier)
	if backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}

	if p.Jitter > 0 {
		jitter := float64(backoff) * p.Jitter * (rand.Float64()*2 - 1)
		backoff += time.Duration(jitter)
	}
	if backoff < 0 {
		backoff = 0
	}
	return backoff
}
