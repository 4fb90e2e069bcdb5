package enricher

import (
	"context"

	"mastoscrape/internal/downloader"
	"mastoscrape/pkg/archive"
	"mastoscrape/pkg/content"
	"mastoscrape/pkg/logger"
	"mastoscrape/pkg/mastodon"
)

// Outcome is the result of one enrichment step.
type Outcome int

const (
	// Resolved means the step produced its full value.
	Resolved Outcome = iota
	// Fallback means the step failed and a substitute value was used.
	Fallback
	// Skipped means the step did not apply or was disabled.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Fallback:
		return "fallback"
	default:
		return "skipped"
	}
}

// API is the subset of the Mastodon client the enricher needs.
type API interface {
	LookupAccount(ctx context.Context, acct string) (*mastodon.Account, error)
	GetStatus(ctx context.Context, id string) (*mastodon.Status, error)
	RebloggedBy(ctx context.Context, statusID string, limit int) ([]mastodon.Account, error)
	FavouritedBy(ctx context.Context, statusID string, limit int) ([]mastodon.Account, error)
	StatusContext(ctx context.Context, statusID string) (*mastodon.Context, error)
}

// MediaDownloader fetches one attachment.
type MediaDownloader interface {
	Fetch(ctx context.Context, job downloader.Job) downloader.Result
}

// Options toggles the optional enrichment steps.
type Options struct {
	FetchEngagement bool
	FetchReplies    bool
	// ActorLimit is the page size for reblogged_by and favourited_by.
	ActorLimit int
}

// Stats tallies step outcomes across all enriched posts.
type Stats struct {
	Posts             int `json:"posts"`
	Originals         int `json:"originals"`
	Reblogs           int `json:"reblogs"`
	Favorites         int `json:"favorites"`
	ActorFallbacks    int `json:"actor_fallbacks"`
	CrossRefFallbacks int `json:"cross_ref_fallbacks"`
	ReplyFallbacks    int `json:"reply_fallbacks"`
	MediaDownloaded   int `json:"media_downloaded"`
	MediaCached       int `json:"media_cached"`
	MediaFailed       int `json:"media_failed"`
	MediaSkipped      int `json:"media_skipped"`
}

// Fallbacks is the number of steps that substituted a fallback value.
func (s Stats) Fallbacks() int {
	return s.ActorFallbacks + s.CrossRefFallbacks + s.ReplyFallbacks + s.MediaFailed
}

// Enricher turns raw statuses into persisted post records.
type Enricher struct {
	api        API
	downloader MediaDownloader
	opts       Options
	logger     logger.Logger
	stats      Stats
}

// New creates an enricher. A nil downloader disables media download.
func New(api API, dl MediaDownloader, opts Options, log logger.Logger) *Enricher {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.ActorLimit <= 0 {
		opts.ActorLimit = mastodon.DefaultAccountsLimit
	}
	return &Enricher{
		api:        api,
		downloader: dl,
		opts:       opts,
		logger:     log.WithField("component", "enricher"),
	}
}

// Stats returns the outcome tallies so far.
func (e *Enricher) Stats() Stats {
	return e.stats
}

// Enrich builds the record for one status. It never fails: every step that
// cannot complete substitutes its fallback value.
func (e *Enricher) Enrich(ctx context.Context, s mastodon.Status) archive.Post {
	post := archive.Post{
		ID:                 s.ID,
		URL:                s.URL,
		CreatedAt:          s.CreatedAt,
		Type:               Classify(s),
		ReblogsCount:       s.ReblogsCount,
		FavouritesCount:    s.FavouritesCount,
		RepliesCount:       s.RepliesCount,
		Visibility:         s.Visibility,
		Sensitive:          s.Sensitive,
		SpoilerText:        s.SpoilerText,
		Language:           s.Language,
		InReplyToID:        s.InReplyToID,
		InReplyToAccountID: s.InReplyToAccountID,
		Poll:               s.Poll,
		MediaAttachments:   archive.MediaFromWire(s.MediaAttachments),
	}
	log := e.logger.WithFields(map[string]interface{}{"post_id": s.ID, "type": string(post.Type)})

	e.stats.Posts++
	switch post.Type {
	case archive.TypeReblog:
		e.stats.Reblogs++
	case archive.TypeFavorite:
		e.stats.Favorites++
	default:
		e.stats.Originals++
	}

	var outcome Outcome
	post.Rebloggers, post.Favouriters, outcome = e.engagement(ctx, s, log)
	if outcome == Fallback {
		e.stats.ActorFallbacks++
	}

	if e.crossReference(ctx, s, &post, log) == Fallback {
		e.stats.CrossRefFallbacks++
	}

	post.Replies, outcome = e.replies(ctx, s.ID, log)
	if outcome == Fallback {
		e.stats.ReplyFallbacks++
	}

	e.downloadMedia(ctx, s, &post)
	return post
}

// engagement expands the reblogger and favouriter lists of public posts.
func (e *Enricher) engagement(ctx context.Context, s mastodon.Status, log logger.Logger) ([]archive.Account, []archive.Account, Outcome) {
	rebloggers, favouriters := []archive.Account{}, []archive.Account{}
	if !e.opts.FetchEngagement || s.Visibility != "public" {
		return rebloggers, favouriters, Skipped
	}

	outcome := Resolved
	merge := func(o Outcome) {
		if o == Fallback {
			outcome = Fallback
		}
	}

	actors, err := e.api.RebloggedBy(ctx, s.ID, e.opts.ActorLimit)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch rebloggers")
		merge(Fallback)
	} else {
		var o Outcome
		rebloggers, o = e.resolveActors(ctx, actors, log)
		merge(o)
	}

	actors, err = e.api.FavouritedBy(ctx, s.ID, e.opts.ActorLimit)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch favouriters")
		merge(Fallback)
	} else {
		var o Outcome
		favouriters, o = e.resolveActors(ctx, actors, log)
		merge(o)
	}

	return rebloggers, favouriters, outcome
}

// resolveActors looks up the full account of each actor by
// username@host, keeping the partial list entry when the lookup fails.
func (e *Enricher) resolveActors(ctx context.Context, actors []mastodon.Account, log logger.Logger) ([]archive.Account, Outcome) {
	out := make([]archive.Account, 0, len(actors))
	outcome := Resolved
	for _, actor := range actors {
		host := archive.InstanceOf(actor.URL)
		if host == "" || actor.Username == "" {
			out = append(out, archive.PartialAccount(actor))
			outcome = Fallback
			continue
		}

		acct := actor.Username + "@" + host
		full, err := e.api.LookupAccount(ctx, acct)
		if err != nil {
			log.WithError(err).WithField("acct", acct).Debug("Actor lookup failed, keeping partial record")
			out = append(out, archive.PartialAccount(actor))
			outcome = Fallback
			continue
		}
		out = append(out, archive.AccountFromWire(*full))
	}
	return out, outcome
}

// crossReference fills the content and the reblogged_from or
// favorited_status payload.
func (e *Enricher) crossReference(ctx context.Context, s mastodon.Status, post *archive.Post, log logger.Logger) Outcome {
	switch post.Type {
	case archive.TypeReblog:
		src := s.Reblog
		post.Content = content.Normalize(src.Content)
		ref := &archive.CrossRef{
			ID:               src.ID,
			Account:          archive.AccountRefFrom(src.Account),
			CreatedAt:        src.CreatedAt,
			MediaAttachments: archive.MediaFromWire(src.MediaAttachments),
		}
		post.RebloggedFrom = ref
		post.MediaAttachments = append(post.MediaAttachments, ref.MediaAttachments...)
		return Resolved

	case archive.TypeFavorite:
		id, ok := FavoriteSourceID(s.URL)
		if !ok {
			log.WithField("url", s.URL).Warn("Cannot parse favourited status id, using placeholder")
			post.Content = content.Placeholder()
			return Fallback
		}
		src, err := e.api.GetStatus(ctx, id)
		if err != nil {
			log.WithError(err).WithField("source_id", id).Warn("Favourited status unavailable, using placeholder")
			post.Content = content.Placeholder()
			return Fallback
		}
		post.Content = content.Normalize(src.Content)
		post.FavoritedStatus = &archive.CrossRef{
			ID:        src.ID,
			Account:   archive.AccountRefFrom(src.Account),
			CreatedAt: src.CreatedAt,
		}
		return Resolved

	default:
		post.Content = content.Normalize(s.Content)
		return Skipped
	}
}

// replies collects the thread descendants of a post.
func (e *Enricher) replies(ctx context.Context, id string, log logger.Logger) ([]archive.Reply, Outcome) {
	replies := []archive.Reply{}
	if !e.opts.FetchReplies {
		return replies, Skipped
	}
	thread, err := e.api.StatusContext(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch thread context")
		return replies, Fallback
	}
	for _, d := range thread.Descendants {
		replies = append(replies, archive.ReplyFromWire(d))
	}
	return replies, Resolved
}

// downloadMedia fetches every attachment of the post. Reblogged media is
// named after the reblogged post so repeated reblogs share one file.
func (e *Enricher) downloadMedia(ctx context.Context, s mastodon.Status, post *archive.Post) {
	if e.downloader == nil || len(post.MediaAttachments) == 0 {
		return
	}

	ownerOf := make(map[string]string, len(post.MediaAttachments))
	for _, m := range s.MediaAttachments {
		ownerOf[m.ID] = s.ID
	}
	if s.Reblog != nil {
		for _, m := range s.Reblog.MediaAttachments {
			ownerOf[m.ID] = s.Reblog.ID
		}
	}

	paths := make(map[string]string)
	for i := range post.MediaAttachments {
		m := &post.MediaAttachments[i]
		owner := ownerOf[m.ID]
		if owner == "" {
			owner = s.ID
		}
		res := e.downloader.Fetch(ctx, downloader.Job{
			OwnerID:   owner,
			MediaID:   m.ID,
			MediaType: m.Type,
			URL:       m.URL,
		})
		switch {
		case res.Skipped:
			e.stats.MediaSkipped++
		case res.Error != nil:
			e.stats.MediaFailed++
		default:
			if res.Cached {
				e.stats.MediaCached++
			} else {
				e.stats.MediaDownloaded++
			}
			m.LocalPath = res.RelPath
			paths[m.ID] = res.RelPath
		}
	}

	if post.RebloggedFrom != nil {
		for i := range post.RebloggedFrom.MediaAttachments {
			m := &post.RebloggedFrom.MediaAttachments[i]
			m.LocalPath = paths[m.ID]
		}
	}
}
