// Package mastodon is a small read-only client for the Mastodon REST API.
//
// It covers the endpoints a profile export needs: account lookup, account
// statuses (max_id pagination), followers and following (Link header
// pagination), single statuses with their boosters, favouriters and thread
// context, and raw media downloads.
//
// Every API response updates the client's view of the server's rate limit
// headers, available through RateLimitStatus. A 429 response is returned as
// a rate limit error carrying the wait derived from Retry-After or
// X-RateLimit-Reset.
package mastodon
