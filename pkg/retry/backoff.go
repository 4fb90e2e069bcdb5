package retry

import (
	"context"
	"time"

	errs "mastoscrape/pkg/errors"
)

// BackoffStrategy decides how long to wait before the next attempt. The
// error that triggered the retry is passed so strategies can honour waits
// mandated by the server.
type BackoffStrategy interface {
	NextDelay(attempt int, err error) time.Duration
}

// ServerDirected waits exactly as long as the server asked for via the
// rate limit error, or Fallback when the error carries no wait.
type ServerDirected struct {
	Fallback time.Duration
}

// NextDelay returns the server-mandated wait, else Fallback.
func (s ServerDirected) NextDelay(_ int, err error) time.Duration {
	if wait, ok := errs.RetryAfterOf(err); ok {
		return wait
	}
	return s.Fallback
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
