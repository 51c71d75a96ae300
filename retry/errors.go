package retry

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error types for classifying outbound call failures.

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error

	// RetryAfter is an optional server-provided wait hint (e.g. from a
	// 429 Retry-After header). Zero means no hint.
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// NewRateLimitError wraps an error as transient with a server-provided
// wait hint that overrides the computed backoff for the next attempt.
func NewRateLimitError(err error, retryAfter time.Duration) error {
	return &TransientError{err: err, RetryAfter: retryAfter}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// retryAfterHint extracts a server wait hint from a transient error chain.
func retryAfterHint(err error) time.Duration {
	var transient *TransientError
	if errors.As(err, &transient) {
		return transient.RetryAfter
	}
	return 0
}

// ClassifyHTTPStatus converts a non-2xx HTTP status into a classified error.
// Rate limiting, timeouts, and server-side failures are transient; other
// client errors (auth, malformed request, validation) are fatal.
func ClassifyHTTPStatus(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode == http.StatusRequestTimeout:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return NewFatalError(fmt.Errorf("authentication failed: %w", err))
	case statusCode >= 400:
		return NewFatalError(err)
	default:
		return NewTransientError(err)
	}
}
