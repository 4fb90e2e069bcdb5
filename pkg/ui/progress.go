package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"mastoscrape/pkg/archive"
)

const barWidth = 20

// ProgressDisplay renders a one-line progress indicator per stage of an
// export job.
type ProgressDisplay struct {
	mu        sync.Mutex
	out       io.Writer
	handle    string
	stage     string
	done      int
	total     int
	media     int
	errors    int
	startTime time.Time
	stageAt   time.Time
	isDebug   bool
	now       func() time.Time
}

// NewProgressDisplay creates a progress display writing to w
func NewProgressDisplay(w io.Writer, handle string, debug bool) *ProgressDisplay {
	if w == nil {
		w = Output()
	}
	return &ProgressDisplay{
		out:       w,
		handle:    handle,
		startTime: time.Now(),
		stageAt:   time.Now(),
		isDebug:   debug,
		now:       time.Now,
	}
}

// Stage starts a new stage line
func (p *ProgressDisplay) Stage(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage != "" {
		fmt.Fprintln(p.out)
	}
	p.stage = name
	p.done, p.total, p.media, p.errors = 0, 0, 0, 0
	p.stageAt = p.now()
	fmt.Fprintf(p.out, "%s %s", Magenta("→"), name)
}

// Collected reports items gathered so far; expected <= 0 means unknown
func (p *ProgressDisplay) Collected(collected, expected int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done, p.total = collected, expected
	p.render()
}

// PostProcessed reports one more enriched post
func (p *ProgressDisplay) PostProcessed(done, total, mediaSaved, failures int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done, p.total, p.media, p.errors = done, total, mediaSaved, failures
	p.render()
}

// RateLimitWarning shows a rate limit wait on its own line
func (p *ProgressDisplay) RateLimitWarning(wait time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\n%s Rate limit reached. Waiting %s...\n", Yellow("⚠"), formatDuration(wait))
}

// Advisory prints a low rate-limit budget notice in debug mode
func (p *ProgressDisplay) Advisory(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isDebug {
		fmt.Fprintf(p.out, "\n%s %s\n", Dim("i"), msg)
	}
}

// render rewrites the current stage line
func (p *ProgressDisplay) render() {
	line := fmt.Sprintf("%s %s %s", Magenta("→"), p.stage, progressBar(p.done, p.total))
	if p.media > 0 {
		line += fmt.Sprintf(" • %d media", p.media)
	}
	if p.errors > 0 {
		line += " • " + Red(fmt.Sprintf("%d fallbacks", p.errors))
	}
	if eta := p.eta(); eta != "" {
		line += " • " + Dim(eta)
	}
	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 100), line)
}

// Complete prints the final summary
func (p *ProgressDisplay) Complete(s archive.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := p.now().Sub(p.startTime)
	fmt.Fprintf(p.out, "\n\n%s Exported %s in %s\n", Green("✓"), Cyan(s.Handle), formatDuration(elapsed))
	fmt.Fprintf(p.out, "  %s %d posts, %d media files\n", Dim("•"), s.Posts, s.MediaDownloaded)
	fmt.Fprintf(p.out, "  %s %d followers, %d following\n", Dim("•"), s.Followers, s.Following)
	if s.Fallbacks > 0 {
		fmt.Fprintf(p.out, "  %s %d items used fallback values\n", Dim("•"), s.Fallbacks)
	}
	if s.PersistFailures > 0 {
		fmt.Fprintf(p.out, "  %s %s\n", Red("•"), Red(fmt.Sprintf("%d output files could not be written, see the log", s.PersistFailures)))
	}
	fmt.Fprintf(p.out, "  %s %s\n", Dim("•"), s.OutputDir)
}

func (p *ProgressDisplay) eta() string {
	if p.done == 0 || p.total <= p.done {
		return ""
	}
	elapsed := p.now().Sub(p.stageAt)
	rate := float64(p.done) / elapsed.Seconds()
	if rate <= 0 {
		return ""
	}
	remaining := time.Duration(float64(p.total-p.done)/rate) * time.Second
	return "eta " + formatDuration(remaining)
}

// progressBar renders done/total, or a bare counter when total is unknown
func progressBar(done, total int) string {
	if total <= 0 {
		return fmt.Sprintf("%d", done)
	}
	ratio := float64(done) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * barWidth)
	return fmt.Sprintf("[%s%s] %d/%d", strings.Repeat("━", filled), strings.Repeat("─", barWidth-filled), done, total)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
