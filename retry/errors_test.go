package retry

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	transient := NewTransientError(base)
	assert.True(t, IsTransient(transient))
	assert.False(t, IsFatal(transient))
	assert.ErrorIs(t, transient, base)

	fatal := NewFatalError(base)
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsTransient(fatal))
	assert.ErrorIs(t, fatal, base)

	// Classification survives further wrapping.
	wrapped := fmt.Errorf("analyze contract: %w", transient)
	assert.True(t, IsTransient(wrapped))

	assert.False(t, IsTransient(base))
	assert.False(t, IsFatal(base))
	assert.False(t, IsTransient(nil))
}

func TestRetryAfterHint(t *testing.T) {
	err := NewRateLimitError(errors.New("rate limited"), 3*time.Second)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3*time.Second, retryAfterHint(err))

	wrapped := fmt.Errorf("send alert: %w", err)
	assert.Equal(t, 3*time.Second, retryAfterHint(wrapped))

	assert.Equal(t, time.Duration(0), retryAfterHint(errors.New("plain")))
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"request timeout", http.StatusRequestTimeout, true},
		{"internal error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"service unavailable", http.StatusServiceUnavailable, true},
		{"unauthorized", http.StatusUnauthorized, false},
		{"forbidden", http.StatusForbidden, false},
		{"bad request", http.StatusBadRequest, false},
		{"unprocessable entity", http.StatusUnprocessableEntity, false},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyHTTPStatus(tt.status, []byte("details"))
			if tt.transient {
				assert.True(t, IsTransient(err), "expected transient")
			} else {
				assert.True(t, IsFatal(err), "expected fatal")
			}
		})
	}
}

func TestClassifyHTTPStatus_TruncatesBody(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}

	err := ClassifyHTTPStatus(http.StatusInternalServerError, long)
	assert.Less(t, len(err.Error()), 300)
	assert.Contains(t, err.Error(), "...")
}
