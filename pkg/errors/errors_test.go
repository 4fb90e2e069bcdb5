package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryAfterOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantWait time.Duration
		wantOK   bool
	}{
		{"rate limit with wait", NewRateLimit(429, 30*time.Second), 30 * time.Second, true},
		{"wrapped rate limit", fmt.Errorf("fetch page: %w", NewRateLimit(429, 2*time.Second)), 2 * time.Second, true},
		{"rate limit without wait", NewRateLimit(429, 0), 0, false},
		{"other typed error", New(ErrorTypeNotFound, 404, "missing"), 0, false},
		{"untyped error", fmt.Errorf("boom"), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wait, ok := RetryAfterOf(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantWait, wait)
		})
	}
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeNotFound, TypeOf(New(ErrorTypeNotFound, 404, "account %s", "bob")))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(fmt.Errorf("plain")))
	assert.True(t, IsRateLimited(fmt.Errorf("wrap: %w", NewRateLimit(429, time.Second))))
	assert.False(t, IsRateLimited(New(ErrorTypeServerError, 500, "down")))
}

func TestErrorMessage(t *testing.T) {
	err := New(ErrorTypeInvalidInput, 0, "malformed handle %q", "a@b@c")
	assert.Equal(t, `invalid_input error (code 0): malformed handle "a@b@c"`, err.Error())

	rl := NewRateLimit(429, 5*time.Second)
	assert.Contains(t, rl.Error(), "retry after 5s")
}

func TestIsRetryableStatusCode(t *testing.T) {
	for code, want := range map[int]bool{0: true, 429: true, 500: true, 503: true, 404: false, 401: false, 200: false} {
		assert.Equal(t, want, IsRetryableStatusCode(code), "status %d", code)
	}
	assert.True(t, IsRetryable(ErrorTypeRateLimit))
	assert.False(t, IsRetryable(ErrorTypeParsing))
}
