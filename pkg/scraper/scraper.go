package scraper

import (
	"context"
	"fmt"
	"io"
	"time"

	"mastoscrape/internal/downloader"
	"mastoscrape/pkg/archive"
	"mastoscrape/pkg/checkpoint"
	"mastoscrape/pkg/collector"
	"mastoscrape/pkg/config"
	"mastoscrape/pkg/enricher"
	errs "mastoscrape/pkg/errors"
	"mastoscrape/pkg/journal"
	"mastoscrape/pkg/logger"
	"mastoscrape/pkg/mastodon"
	"mastoscrape/pkg/ratelimit"
	"mastoscrape/pkg/storage"
)

// MastodonClient is the API surface an export needs
type MastodonClient interface {
	enricher.API
	Host() string
	RateLimitStatus() ratelimit.Status
	GetAccount(ctx context.Context, id string) (*mastodon.Account, error)
	AccountStatuses(ctx context.Context, accountID, maxID string, limit int) ([]mastodon.Status, error)
	Relations(ctx context.Context, accountID string, kind mastodon.RelationKind, cursor string, limit int) ([]mastodon.Account, string, error)
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Progress receives stage and item updates for display
type Progress interface {
	Stage(name string)
	Collected(collected, expected int)
	PostProcessed(done, total, mediaSaved, failures int)
	RateLimitWarning(wait time.Duration)
	Advisory(msg string)
}

// ClientFactory builds the client for a home server
type ClientFactory func(host, token string) MastodonClient

// Scraper orchestrates the export of one profile
type Scraper struct {
	config      *config.Config
	logger      logger.Logger
	newClient   ClientFactory
	token       func(host string) string
	progress    Progress
	checkpoints bool
}

// New creates a Scraper from configuration
func New(cfg *config.Config, log logger.Logger) *Scraper {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Scraper{
		config:      cfg,
		logger:      log.WithField("component", "scraper"),
		progress:    nopProgress{},
		checkpoints: true,
	}
	s.newClient = func(host, token string) MastodonClient {
		return mastodon.NewClient(host, mastodon.Options{
			Timeout:           cfg.Mastodon.RequestTimeout,
			UserAgent:         cfg.Mastodon.UserAgent,
			AccessToken:       token,
			DefaultRetryAfter: cfg.RateLimit.DefaultRetryAfter,
		}, log)
	}
	s.token = func(string) string { return cfg.Mastodon.AccessToken }
	return s
}

// SetClientFactory replaces how API clients are built
func (s *Scraper) SetClientFactory(f ClientFactory) {
	s.newClient = f
}

// SetTokenSource sets how the access token for a host is found. The
// configured token, when present, takes precedence.
func (s *Scraper) SetTokenSource(f func(host string) string) {
	s.token = func(host string) string {
		if s.config.Mastodon.AccessToken != "" {
			return s.config.Mastodon.AccessToken
		}
		return f(host)
	}
}

// SetProgress attaches a progress display
func (s *Scraper) SetProgress(p Progress) {
	if p == nil {
		p = nopProgress{}
	}
	s.progress = p
}

// DisableCheckpoints stops the scraper from writing checkpoint files
func (s *Scraper) DisableCheckpoints() {
	s.checkpoints = false
}

// job carries the state of one Run
type job struct {
	handle  Handle
	client  MastodonClient
	account *mastodon.Account
	store   *storage.Manager
	cpMgr   *checkpoint.Manager
	cp      *checkpoint.Checkpoint
	log     logger.Logger
	summary archive.Summary
}

// Run exports the profile named by handle. Resolve errors are returned
// before anything is written; later failures degrade the export and are
// reported in the summary and logs. A cancelled context stops the job
// after flushing what was collected and returns the context error.
func (s *Scraper) Run(ctx context.Context, rawHandle string) (*archive.Summary, error) {
	handle, err := ParseHandle(rawHandle, s.config.Mastodon.DefaultInstance)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithField("handle", handle.String())

	j := &job{
		handle: handle,
		client: s.newClient(handle.Host, s.token(handle.Host)),
		log:    log,
	}

	s.progress.Stage("resolve")
	if err := s.resolve(ctx, j); err != nil {
		return nil, err
	}

	j.store, err = storage.NewManager(s.config.Output.BaseDirectory, handle.Username, handle.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare output directory: %w", err)
	}
	j.summary = archive.Summary{Handle: handle.String(), OutputDir: j.store.OutputDir()}
	s.openCheckpoint(j)

	log.InfoWithFields("Starting export", map[string]interface{}{
		"account_id": j.account.ID,
		"output_dir": j.store.OutputDir(),
		"statuses":   j.account.StatusesCount,
		"followers":  j.account.FollowersCount,
		"following":  j.account.FollowingCount,
	})

	profileSaved := s.snapshotProfile(j)

	statuses := s.collectPosts(ctx, j)
	if err := s.enrichAndPersistPosts(ctx, j, statuses); err != nil {
		return s.abort(j, err)
	}

	for _, kind := range []mastodon.RelationKind{mastodon.Followers, mastodon.Following} {
		if err := ctx.Err(); err != nil {
			return s.abort(j, err)
		}
		accounts := s.collectRelations(ctx, j, kind)
		s.persistRelations(j, kind, accounts)
	}

	if !profileSaved && !s.snapshotProfile(j) {
		j.summary.PersistFailures++
	}

	s.checkpoint(j, func() error { return j.cpMgr.Complete(j.cp) })
	log.InfoWithFields("Export complete", map[string]interface{}{
		"posts":            j.summary.Posts,
		"media_downloaded": j.summary.MediaDownloaded,
		"followers":        j.summary.Followers,
		"following":        j.summary.Following,
		"fallbacks":        j.summary.Fallbacks,
		"persist_failures": j.summary.PersistFailures,
	})
	return &j.summary, nil
}

// resolve looks the handle up on its home server and loads the full account
func (s *Scraper) resolve(ctx context.Context, j *job) error {
	found, err := j.client.LookupAccount(ctx, j.handle.Username)
	if err != nil {
		j.log.WithError(err).Error("Failed to resolve handle")
		if errs.Is(err, errs.ErrorTypeNotFound) {
			return errs.New(errs.ErrorTypeNotFound, 404, "account %s not found", j.handle)
		}
		return fmt.Errorf("failed to resolve %s: %w", j.handle, err)
	}

	account, err := j.client.GetAccount(ctx, found.ID)
	if err != nil {
		j.log.WithError(err).Error("Failed to load account")
		return fmt.Errorf("failed to load account %s: %w", j.handle, err)
	}
	j.account = account
	return nil
}

func (s *Scraper) snapshotProfile(j *job) bool {
	s.progress.Stage("profile")
	s.checkpoint(j, func() error { return j.cpMgr.EnterStage(j.cp, checkpoint.StageProfile) })

	profile := archive.ProfileFromAccount(j.account, j.handle.Host)
	if err := storage.WriteJSON(j.store.Path(storage.ProfileFile), profile); err != nil {
		j.log.WithError(err).Error("Failed to save profile, will retry at the end of the job")
		return false
	}
	return true
}

func (s *Scraper) collectorOptions(j *job, resource string) collector.Options {
	return collector.Options{
		Resource:      resource,
		Delay:         s.config.Scrape.RequestDelay,
		RetryFallback: s.config.RateLimit.DefaultRetryAfter,
		Status:        j.client,
		Monitor:       ratelimit.NewMonitor(s.config.RateLimit.AdvisoryThreshold),
		OnRateLimit:   s.progress.RateLimitWarning,
		OnAdvisory:    s.progress.Advisory,
		Logger:        j.log,
	}
}

func (s *Scraper) collectPosts(ctx context.Context, j *job) []mastodon.Status {
	s.progress.Stage("posts")
	s.checkpoint(j, func() error { return j.cpMgr.EnterStage(j.cp, checkpoint.StagePosts) })

	expected := j.account.StatusesCount
	if limit := s.config.Scrape.MaxPosts; limit > 0 && (expected <= 0 || limit < expected) {
		expected = limit
	}

	opts := s.collectorOptions(j, "posts")
	opts.MaxItems = s.config.Scrape.MaxPosts
	opts.OnPage = func(collected int, _ string) { s.progress.Collected(collected, expected) }

	source := collector.MaxIDSource[mastodon.Status]{
		Fetch: func(ctx context.Context, maxID string) ([]mastodon.Status, error) {
			return j.client.AccountStatuses(ctx, j.account.ID, maxID, s.config.Scrape.PostsPageLimit)
		},
		ID: func(st mastodon.Status) string { return st.ID },
	}
	res := collector.New[mastodon.Status](source, func(st mastodon.Status) string { return st.ID }, opts).Collect(ctx)

	s.recordCollection(j, "posts", res.Cursor, len(res.Items), res.Stop, res.Err)
	return res.Items
}

func (s *Scraper) enrichAndPersistPosts(ctx context.Context, j *job, statuses []mastodon.Status) error {
	var dl enricher.MediaDownloader
	if s.config.Scrape.DownloadMedia {
		dl = downloader.New(j.client, j.store, ratelimit.PerMinute(s.config.RateLimit.MediaRequestsPerMinute), storage.MediaRelPath, j.log)
	}
	e := enricher.New(j.client, dl, enricher.Options{
		FetchEngagement: s.config.Scrape.FetchEngagement,
		FetchReplies:    s.config.Scrape.FetchReplies,
		ActorLimit:      s.config.Scrape.AccountsPageLimit,
	}, j.log)

	posts := journal.New(j.store.Path(storage.PostsFile), journal.ModeAppend, s.config.Scrape.PostBatchSize,
		func(p archive.Post) string { return p.ID }, j.log)

	s.progress.Stage("enrich")
	var stopErr error
	for i, st := range statuses {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		// Flush errors are logged by the journal and the batch is retried
		// on the next flush.
		_ = posts.Add(e.Enrich(ctx, st))

		stats := e.Stats()
		s.progress.PostProcessed(i+1, len(statuses), stats.MediaDownloaded+stats.MediaCached, stats.Fallbacks())
	}
	flushErr := posts.Flush()

	stats := e.Stats()
	j.summary.Posts = posts.Len()
	j.summary.MediaDownloaded = stats.MediaDownloaded
	j.summary.Fallbacks += stats.Fallbacks()
	s.checkpoint(j, func() error { return j.cpMgr.RecordCount(j.cp, "media", stats.MediaDownloaded) })

	j.log.InfoWithFields("Posts persisted", map[string]interface{}{
		"posts":      posts.Len(),
		"durable":    posts.Durable(),
		"originals":  stats.Originals,
		"reblogs":    stats.Reblogs,
		"favorites":  stats.Favorites,
		"media":      stats.MediaDownloaded,
		"media_fail": stats.MediaFailed,
		"fallbacks":  stats.Fallbacks(),
	})

	if flushErr != nil {
		j.summary.PersistFailures++
		j.log.WithError(flushErr).WarnWithFields("Posts not persisted, continuing with the next stage", map[string]interface{}{
			"pending": posts.Pending(),
		})
	}
	return stopErr
}

func (s *Scraper) collectRelations(ctx context.Context, j *job, kind mastodon.RelationKind) []mastodon.Account {
	resource := string(kind)
	stage := checkpoint.StageFollowers
	expected := j.account.FollowersCount
	if kind == mastodon.Following {
		stage = checkpoint.StageFollowing
		expected = j.account.FollowingCount
	}
	s.progress.Stage(resource)
	s.checkpoint(j, func() error { return j.cpMgr.EnterStage(j.cp, stage) })

	opts := s.collectorOptions(j, resource)
	opts.ExpectedTotal = expected
	opts.OnPage = func(collected int, _ string) { s.progress.Collected(collected, expected) }

	source := collector.LinkSource[mastodon.Account]{
		Fetch: func(ctx context.Context, cursor string) ([]mastodon.Account, string, error) {
			return j.client.Relations(ctx, j.account.ID, kind, cursor, s.config.Scrape.AccountsPageLimit)
		},
	}
	res := collector.New[mastodon.Account](source, func(a mastodon.Account) string { return a.ID }, opts).Collect(ctx)

	s.recordCollection(j, resource, res.Cursor, len(res.Items), res.Stop, res.Err)
	return res.Items
}

// persistRelations writes the account list; a failed write is counted and
// the job goes on.
func (s *Scraper) persistRelations(j *job, kind mastodon.RelationKind, accounts []mastodon.Account) {
	name := storage.FollowersFile
	if kind == mastodon.Following {
		name = storage.FollowingFile
	}
	jr := journal.New(j.store.Path(name), journal.ModeSnapshot, s.config.Scrape.AccountBatchSize,
		func(a archive.Account) string { return a.ID }, j.log)

	for _, a := range accounts {
		_ = jr.Add(archive.AccountFromWire(a))
	}
	if err := jr.Flush(); err != nil {
		j.summary.PersistFailures++
		j.log.WithError(err).WarnWithFields("Account list not persisted, continuing", map[string]interface{}{
			"resource": string(kind),
			"pending":  jr.Pending(),
		})
	}

	if kind == mastodon.Following {
		j.summary.Following = jr.Len()
	} else {
		j.summary.Followers = jr.Len()
	}
}

func (s *Scraper) recordCollection(j *job, resource, cursor string, count int, stop collector.StopReason, err error) {
	fields := map[string]interface{}{
		"collected": count,
		"stop":      string(stop),
	}
	if err != nil {
		j.log.WithError(err).WarnWithFields("Collection incomplete", fields)
	} else {
		j.log.InfoWithFields("Collection finished", fields)
	}
	s.checkpoint(j, func() error { return j.cpMgr.RecordCollection(j.cp, resource, cursor, count, string(stop)) })
}

// abort records a failed run and returns the partial summary with err
func (s *Scraper) abort(j *job, err error) (*archive.Summary, error) {
	j.log.WithError(err).Error("Export stopped")
	s.checkpoint(j, func() error { return j.cpMgr.Fail(j.cp, err) })
	return &j.summary, err
}

func (s *Scraper) openCheckpoint(j *job) {
	if !s.checkpoints {
		return
	}
	mgr, err := checkpoint.NewManager(j.handle.Username, j.handle.Host)
	if err != nil {
		j.log.WithError(err).Warn("Checkpoints disabled")
		return
	}
	cp, err := mgr.Create(j.handle.String(), j.account.ID, j.store.OutputDir())
	if err != nil {
		j.log.WithError(err).Warn("Checkpoints disabled")
		return
	}
	j.cpMgr, j.cp = mgr, cp
}

// checkpoint runs fn when checkpoints are active; failures only warn
func (s *Scraper) checkpoint(j *job, fn func() error) {
	if j.cpMgr == nil || j.cp == nil {
		return
	}
	if err := fn(); err != nil {
		j.log.WithError(err).Warn("Failed to update checkpoint")
	}
}

type nopProgress struct{}

func (nopProgress) Stage(string)                     {}
func (nopProgress) Collected(int, int)               {}
func (nopProgress) PostProcessed(int, int, int, int) {}
func (nopProgress) RateLimitWarning(time.Duration)   {}
func (nopProgress) Advisory(string)                  {}
