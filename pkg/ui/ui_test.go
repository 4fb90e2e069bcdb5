package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mastoscrape/pkg/archive"
)

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "7", progressBar(7, 0))
	assert.Equal(t, "[━━━━━━━━━━──────────] 5/10", progressBar(5, 10))
	assert.Equal(t, "[━━━━━━━━━━━━━━━━━━━━] 12/10", progressBar(12, 10))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h30m", formatDuration(90*time.Minute))
}

func TestProgressDisplayStagesAndSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressDisplay(&buf, "alice@example.social", false)

	p.Stage("posts")
	p.Collected(40, 80)
	p.Stage("followers")
	p.RateLimitWarning(90 * time.Second)
	p.Complete(archive.Summary{
		Handle: "alice@example.social", OutputDir: "out", Posts: 2, MediaDownloaded: 1, Followers: 1, Fallbacks: 3,
	})

	out := buf.String()
	assert.Contains(t, out, "posts")
	assert.Contains(t, out, "40/80")
	assert.Contains(t, out, "Waiting 1m30s")
	assert.Contains(t, out, "2 posts, 1 media files")
	assert.Contains(t, out, "3 items used fallback values")
	assert.NotContains(t, out, "could not be written")

	buf.Reset()
	p.Complete(archive.Summary{Handle: "alice@example.social", PersistFailures: 1})
	assert.Contains(t, buf.String(), "1 output files could not be written")
}

func TestAdvisoryOnlyInDebug(t *testing.T) {
	var buf bytes.Buffer
	NewProgressDisplay(&buf, "a@b", false).Advisory("rate limit low")
	assert.Empty(t, buf.String())

	NewProgressDisplay(&buf, "a@b", true).Advisory("rate limit low")
	assert.Contains(t, buf.String(), "rate limit low")
}

type recordingSender struct {
	titles []string
	err    error
}

func (r *recordingSender) Send(title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func TestNotifier(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	sender := &recordingSender{err: errors.New("no display")}
	n := NewNotifierWithSender(sender)
	n.SendSuccess("Export complete", "alice")
	n.SendError("Export failed", "bob")

	assert.Equal(t, []string{"Export complete", "Export failed"}, sender.titles)
	assert.Contains(t, buf.String(), "Export failed")
}

func TestQuietModeSuppressesInfo(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	SetQuietMode(true)
	defer SetQuietMode(false)

	PrintInfo("Output", "dir")
	PrintSuccess("done")
	assert.Empty(t, buf.String())

	PrintError("boom", "detail")
	assert.Contains(t, buf.String(), "boom: detail")
}
