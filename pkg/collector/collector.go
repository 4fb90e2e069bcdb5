// Package collector drains paginated endpoints.
//
// A Collector repeatedly asks its Source for the next page, drops items it
// has already seen, and stops when the source is exhausted, a page brings
// nothing new, or a size bound is reached. Rate limit errors block for the
// wait the server asked for and retry the same cursor; any other error ends
// the collection and the items gathered so far are returned.
package collector

import (
	"context"
	"time"

	"mastoscrape/pkg/logger"
	"mastoscrape/pkg/ratelimit"
	"mastoscrape/pkg/retry"
)

// StopReason records why a collection ended.
type StopReason string

const (
	StopEmptyPage     StopReason = "empty_page"
	StopNoNewItems    StopReason = "no_new_items"
	StopMaxItems      StopReason = "max_items"
	StopExpectedTotal StopReason = "expected_total"
	StopExhausted     StopReason = "cursor_exhausted"
	StopError         StopReason = "error"
)

// Options bound and pace a collection.
type Options struct {
	// Resource names what is collected, for logs.
	Resource string
	// MaxItems truncates the result; <= 0 means unbounded.
	MaxItems int
	// ExpectedTotal stops once that many items are held; <= 0 means unknown.
	ExpectedTotal int
	// Delay is the courtesy pause between successful pages.
	Delay time.Duration
	// RetryFallback is the rate limit wait used when the server gives none.
	RetryFallback time.Duration
	// Status and Monitor produce low-budget advisories before each request.
	Status  ratelimit.StatusProvider
	Monitor *ratelimit.Monitor
	// OnPage is called after every accepted page.
	OnPage func(collected int, cursor string)
	// OnRateLimit is called before each server-enforced wait.
	OnRateLimit func(wait time.Duration)
	// OnAdvisory receives low-budget advisories.
	OnAdvisory func(msg string)
	// Sleep replaces retry.Wait, for tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger logger.Logger
}

// Result is what a collection produced. Err holds the failure that ended a
// degraded collection; Items are valid either way.
type Result[T any] struct {
	Items  []T
	Pages  int
	Cursor string
	Stop   StopReason
	Err    error
}

// Collector drains a Source.
type Collector[T any] struct {
	source Source[T]
	key    func(T) string
	opts   Options
}

// New creates a Collector; key returns the identity used for dedup.
func New[T any](source Source[T], key func(T) string, opts Options) *Collector[T] {
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Wait
	}
	if opts.RetryFallback <= 0 {
		opts.RetryFallback = 60 * time.Second
	}
	if opts.Monitor == nil {
		opts.Monitor = ratelimit.NewMonitor(ratelimit.DefaultThreshold)
	}
	return &Collector[T]{source: source, key: key, opts: opts}
}

// Collect runs the pagination loop to completion.
func (c *Collector[T]) Collect(ctx context.Context) Result[T] {
	log := c.opts.Logger.WithField("resource", c.opts.Resource)
	res := Result[T]{Items: make([]T, 0)}
	seen := make(map[string]struct{})

	retryCfg := retry.RateLimitConfig(ctx, c.opts.RetryFallback, nil)
	retryCfg.Sleep = c.opts.Sleep
	retryCfg.OnRetry = func(_ int, _ error, delay time.Duration) {
		logger.LogRateLimit(log, c.opts.Resource, delay)
		if c.opts.OnRateLimit != nil {
			c.opts.OnRateLimit(delay)
		}
	}

	for {
		cursor := res.Cursor
		page, err := retry.DoWithResult(func() (Page[T], error) {
			c.advise(log)
			return c.source.FetchNext(ctx, cursor)
		}, retryCfg)
		if err != nil {
			log.WithError(err).WarnWithFields("Collection stopped early, keeping partial results", map[string]interface{}{
				"collected": len(res.Items),
				"pages":     res.Pages,
			})
			res.Stop, res.Err = StopError, err
			return res
		}
		res.Pages++

		if len(page.Items) == 0 {
			res.Stop = StopEmptyPage
			return res
		}

		fresh := 0
		for _, item := range page.Items {
			k := c.key(item)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			res.Items = append(res.Items, item)
			fresh++
			if c.opts.MaxItems > 0 && len(res.Items) >= c.opts.MaxItems {
				res.Stop = StopMaxItems
				return c.accept(res, page.Next, log)
			}
		}
		if fresh == 0 {
			res.Stop = StopNoNewItems
			return res
		}

		res = c.accept(res, page.Next, log)
		if c.opts.ExpectedTotal > 0 && len(res.Items) >= c.opts.ExpectedTotal {
			res.Stop = StopExpectedTotal
			return res
		}
		if page.Next == "" {
			res.Stop = StopExhausted
			return res
		}

		if err := c.opts.Sleep(ctx, c.opts.Delay); err != nil {
			res.Stop, res.Err = StopError, err
			return res
		}
	}
}

func (c *Collector[T]) accept(res Result[T], next string, log logger.Logger) Result[T] {
	res.Cursor = next
	logger.LogCollectionProgress(log, c.opts.Resource, len(res.Items), c.opts.ExpectedTotal)
	if c.opts.OnPage != nil {
		c.opts.OnPage(len(res.Items), next)
	}
	return res
}

func (c *Collector[T]) advise(log logger.Logger) {
	if c.opts.Status == nil {
		return
	}
	if msg, ok := c.opts.Monitor.Check(c.opts.Status.RateLimitStatus()); ok {
		log.Warn(msg)
		if c.opts.OnAdvisory != nil {
			c.opts.OnAdvisory(msg)
		}
	}
}
