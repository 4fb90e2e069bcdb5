// Package ratelimit deals with both sides of request pacing.
//
// Monitor reads the rate limit headers the server reports (limit, remaining,
// reset) and produces a human readable advisory when the remaining budget
// drops under a threshold. It is purely informational.
//
// SlidingWindow is a client-side limiter used to pace media downloads,
// which go to media hosts that do not report rate limit headers:
//
//	limiter := ratelimit.PerMinute(120)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
