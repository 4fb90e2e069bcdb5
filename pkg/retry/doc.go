// Package retry re-runs operations that failed with a retryable error.
//
// The server decides how long to back off: a rate limit error carries the
// wait from Retry-After or the rate limit reset header, and ServerDirected
// sleeps exactly that long. Collection code retries rate limits without an
// attempt cap:
//
//	cfg := retry.RateLimitConfig(ctx, 60*time.Second, log)
//	page, err := retry.DoWithResult(func() (Page, error) {
//		return src.FetchNext(ctx, cursor)
//	}, cfg)
//
// Any other error is returned to the caller immediately.
package retry
