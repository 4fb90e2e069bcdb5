package mastodon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	errs "mastoscrape/pkg/errors"
	"mastoscrape/pkg/logger"
	"mastoscrape/pkg/ratelimit"
)

// Options configures a Client.
type Options struct {
	Timeout           time.Duration
	UserAgent         string
	AccessToken       string
	DefaultRetryAfter time.Duration
	// BaseURL overrides https://<host>, mainly for tests.
	BaseURL string
	// HTTPClient replaces the default http.Client.
	HTTPClient *http.Client
}

// Client talks to the REST API of a single home server.
type Client struct {
	httpClient        *http.Client
	headers           map[string]string
	baseURL           string
	host              string
	defaultRetryAfter time.Duration
	logger            logger.Logger
	now               func() time.Time

	mu     sync.Mutex
	status ratelimit.Status
}

// NewClient creates a client for host.
func NewClient(host string, opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://" + host
	}
	retryAfter := opts.DefaultRetryAfter
	if retryAfter <= 0 {
		retryAfter = 60 * time.Second
	}

	headers := map[string]string{
		"Accept": "application/json",
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}
	if opts.AccessToken != "" {
		headers["Authorization"] = "Bearer " + opts.AccessToken
	}

	return &Client{
		httpClient:        httpClient,
		headers:           headers,
		baseURL:           baseURL,
		host:              host,
		defaultRetryAfter: retryAfter,
		logger:            log.WithField("instance", host),
		now:               time.Now,
	}
}

// Host returns the home server the client talks to.
func (c *Client) Host() string {
	return c.host
}

// RateLimitStatus returns the rate limit state from the latest response.
func (c *Client) RateLimitStatus() ratelimit.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LookupAccount resolves acct (user or user@host) to an account.
func (c *Client) LookupAccount(ctx context.Context, acct string) (*Account, error) {
	var account Account
	if _, err := c.getJSON(ctx, c.lookupURL(acct), &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccount fetches an account by id.
func (c *Client) GetAccount(ctx context.Context, id string) (*Account, error) {
	var account Account
	if _, err := c.getJSON(ctx, c.accountURL(id), &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// VerifyCredentials returns the account the access token belongs to.
func (c *Client) VerifyCredentials(ctx context.Context) (*Account, error) {
	var account Account
	if _, err := c.getJSON(ctx, c.verifyCredentialsURL(), &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// VerifyApp returns the application the access token was issued to. Servers
// before 4.3 omit its scopes.
func (c *Client) VerifyApp(ctx context.Context) (*Application, error) {
	var app Application
	if _, err := c.getJSON(ctx, c.appCredentialsURL(), &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// AccountStatuses fetches one page of an account's statuses, newest first,
// strictly older than maxID when maxID is set.
func (c *Client) AccountStatuses(ctx context.Context, accountID, maxID string, limit int) ([]Status, error) {
	var statuses []Status
	if _, err := c.getJSON(ctx, c.statusesURL(accountID, maxID, limit), &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// Relations fetches one page of followers or following. An empty cursor
// requests the first page; otherwise cursor is the next-page URL returned
// by the previous call. The returned next URL is empty on the last page.
func (c *Client) Relations(ctx context.Context, accountID string, kind RelationKind, cursor string, limit int) ([]Account, string, error) {
	pageURL := cursor
	if pageURL == "" {
		pageURL = c.relationURL(accountID, kind, limit)
	}
	var accounts []Account
	header, err := c.getJSON(ctx, pageURL, &accounts)
	if err != nil {
		return nil, "", err
	}
	return accounts, parseLinkHeader(header.Get("Link"))["next"], nil
}

// GetStatus fetches a single status.
func (c *Client) GetStatus(ctx context.Context, id string) (*Status, error) {
	var status Status
	if _, err := c.getJSON(ctx, c.statusURL(id), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RebloggedBy returns the first page of accounts that boosted a status.
func (c *Client) RebloggedBy(ctx context.Context, statusID string, limit int) ([]Account, error) {
	var accounts []Account
	if _, err := c.getJSON(ctx, c.statusActorsURL(statusID, "reblogged_by", limit), &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// FavouritedBy returns the first page of accounts that favourited a status.
func (c *Client) FavouritedBy(ctx context.Context, statusID string, limit int) ([]Account, error) {
	var accounts []Account
	if _, err := c.getJSON(ctx, c.statusActorsURL(statusID, "favourited_by", limit), &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// StatusContext fetches the ancestors and descendants of a status.
func (c *Client) StatusContext(ctx context.Context, statusID string) (*Context, error) {
	var thread Context
	if _, err := c.getJSON(ctx, c.statusURL(statusID)+"/context", &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// Download opens a media URL for streaming. The caller closes the body.
func (c *Client) Download(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeInvalidInput, 0, "failed to create request: %v", err)
	}
	// Media hosts get neither the API Accept header nor the bearer token.
	if ua, ok := c.headers["User-Agent"]; ok {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if err := c.checkResponseStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// getJSON performs an API GET and decodes the JSON body into target.
func (c *Client) getJSON(ctx context.Context, url string, target interface{}) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeInvalidInput, 0, "failed to create request: %v", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	c.recordRateLimit(resp.Header)

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body: %v", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return nil, errs.New(errs.ErrorTypeParsing, resp.StatusCode, "failed to parse JSON: %v", err)
	}

	return resp.Header, nil
}

// send performs the request and logs it.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.New(errs.ErrorTypeNetwork, 0, "network error: %v", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

// checkResponseStatus maps non-2xx responses to typed errors.
func (c *Client) checkResponseStatus(resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	fields := map[string]interface{}{
		"status": code,
		"url":    resp.Request.URL.String(),
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", fields)
		return errs.New(errs.ErrorTypeAuth, code, "not authorized")
	case code == http.StatusNotFound || code == http.StatusGone:
		c.logger.DebugWithFields("resource not found", fields)
		return errs.New(errs.ErrorTypeNotFound, code, "resource not found")
	case code == http.StatusTooManyRequests:
		wait := c.retryAfter(resp.Header)
		fields["retry_after"] = wait
		c.logger.WarnWithFields("rate limit exceeded", fields)
		return errs.NewRateLimit(code, wait)
	case code >= 500:
		c.logger.WarnWithFields("server error", fields)
		return errs.New(errs.ErrorTypeServerError, code, "server error")
	default:
		c.logger.WarnWithFields("unexpected API error", fields)
		return errs.New(errs.ErrorTypeUnknown, code, "unexpected status code: %d", code)
	}
}

// retryAfter derives the wait for a 429: Retry-After (seconds or HTTP
// date), then the rate limit reset instant, then the configured default.
func (c *Client) retryAfter(h http.Header) time.Duration {
	now := c.now()
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil && at.After(now) {
			return at.Sub(now)
		}
	}
	if at, ok := parseReset(h.Get("X-RateLimit-Reset")); ok && at.After(now) {
		return at.Sub(now)
	}
	return c.defaultRetryAfter
}

// recordRateLimit stores the rate limit headers of a response, if any.
func (c *Client) recordRateLimit(h http.Header) {
	limit, hasLimit := parseCount(h.Get("X-RateLimit-Limit"))
	remaining, hasRemaining := parseCount(h.Get("X-RateLimit-Remaining"))
	reset, hasReset := parseReset(h.Get("X-RateLimit-Reset"))
	if !hasLimit && !hasRemaining && !hasReset {
		return
	}

	status := ratelimit.Status{ResetAt: reset}
	if hasLimit {
		status.Limit = &limit
	}
	if hasRemaining {
		status.Remaining = &remaining
	}

	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

func parseCount(v string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseReset(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseLinkHeader parses an RFC 8288 Link header into rel -> URL. Targets
// are delimited by angle brackets, so commas inside a URL are kept.
func parseLinkHeader(header string) map[string]string {
	links := make(map[string]string)
	rest := header
	for {
		start := strings.IndexByte(rest, '<')
		if start < 0 {
			return links
		}
		end := strings.IndexByte(rest[start:], '>')
		if end < 0 {
			return links
		}
		target := rest[start+1 : start+end]
		rest = rest[start+end+1:]

		// Parameters run up to the next target.
		params := rest
		if next := strings.IndexByte(rest, '<'); next >= 0 {
			params = rest[:next]
		}
		for _, param := range strings.Split(params, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || strings.TrimSpace(key) != "rel" {
				continue
			}
			value = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(value), ","))
			for _, rel := range strings.Fields(strings.Trim(value, `"`)) {
				links[rel] = target
			}
		}
	}
}
