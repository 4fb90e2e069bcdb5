package downloader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"mastoscrape/pkg/logger"
	"mastoscrape/pkg/ratelimit"
)

// Job is one media file to fetch. OwnerID is the id of the post that
// originally carried the attachment, which for a reblog is the reblogged
// post rather than the wrapper.
type Job struct {
	OwnerID   string
	MediaID   string
	MediaType string
	URL       string
}

// Result reports the outcome of a job. RelPath is set only on success.
type Result struct {
	Job      Job
	Filename string
	RelPath  string
	Skipped  bool
	Cached   bool
	Error    error
	Duration time.Duration
	Size     int64
}

// Success reports whether the file is on disk after the job.
func (r Result) Success() bool {
	return r.Error == nil && !r.Skipped
}

// MediaFetcher opens a remote media resource.
type MediaFetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// MediaStorage persists media files.
type MediaStorage interface {
	IsDownloaded(filename string) bool
	SaveMedia(r io.Reader, filename string) error
}

// Extension returns the file extension for an attachment: the URL path
// suffix when there is one, otherwise .jpg for images and .mp4 for videos.
// The boolean is false when no extension can be resolved.
func Extension(rawURL, mediaType string) (string, bool) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if ext := path.Ext(p); ext != "" && ext != "." && !strings.ContainsAny(ext, "/\\") {
		return ext, true
	}
	switch mediaType {
	case "image":
		return ".jpg", true
	case "video":
		return ".mp4", true
	}
	return "", false
}

// Filename builds the deterministic local name {ownerID}_{mediaID}{ext}.
func Filename(ownerID, mediaID, rawURL, mediaType string) (string, bool) {
	ext, ok := Extension(rawURL, mediaType)
	if !ok || ownerID == "" || mediaID == "" {
		return "", false
	}
	return ownerID + "_" + mediaID + ext, true
}

// Downloader fetches media one file at a time, paced by a limiter.
type Downloader struct {
	fetcher MediaFetcher
	storage MediaStorage
	limiter ratelimit.Limiter
	relPath func(string) string
	logger  logger.Logger
}

// New creates a downloader. relPath maps a filename to the path recorded
// in the export; limiter may be nil for unpaced downloads.
func New(fetcher MediaFetcher, storage MediaStorage, limiter ratelimit.Limiter, relPath func(string) string, log logger.Logger) *Downloader {
	if log == nil {
		log = logger.GetLogger()
	}
	if relPath == nil {
		relPath = func(name string) string { return name }
	}
	return &Downloader{
		fetcher: fetcher,
		storage: storage,
		limiter: limiter,
		relPath: relPath,
		logger:  log.WithField("component", "downloader"),
	}
}

// Fetch downloads one job. Failures are reported in the result, never as a
// panic or a partially written file.
func (d *Downloader) Fetch(ctx context.Context, job Job) Result {
	start := time.Now()
	result := Result{Job: job}

	filename, ok := Filename(job.OwnerID, job.MediaID, job.URL, job.MediaType)
	if !ok || job.URL == "" {
		result.Skipped = true
		d.logger.DebugWithFields("No resolvable file name, skipping media", map[string]interface{}{
			"post_id":    job.OwnerID,
			"media_id":   job.MediaID,
			"media_type": job.MediaType,
		})
		return result
	}
	result.Filename = filename

	if d.storage.IsDownloaded(filename) {
		result.Cached = true
		result.RelPath = d.relPath(filename)
		result.Duration = time.Since(start)
		return result
	}

	if d.limiter != nil && !d.limiter.Allow() {
		if err := d.limiter.Wait(ctx); err != nil {
			result.Error = err
			result.Duration = time.Since(start)
			return result
		}
	}

	body, err := d.fetcher.Download(ctx, job.URL)
	if err != nil {
		result.Error = fmt.Errorf("download failed: %w", err)
		result.Duration = time.Since(start)
		logger.LogDownload(d.logger, job.OwnerID, job.MediaID, job.MediaType, result.Error)
		return result
	}
	defer body.Close()

	counter := &countingReader{r: body}
	if err := d.storage.SaveMedia(counter, filename); err != nil {
		result.Error = fmt.Errorf("save failed: %w", err)
		result.Duration = time.Since(start)
		logger.LogDownload(d.logger, job.OwnerID, job.MediaID, job.MediaType, result.Error)
		return result
	}

	result.RelPath = d.relPath(filename)
	result.Size = counter.n
	result.Duration = time.Since(start)
	logger.LogDownload(d.logger, job.OwnerID, job.MediaID, job.MediaType, nil)
	return result
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
