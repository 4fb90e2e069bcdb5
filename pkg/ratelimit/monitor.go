package ratelimit

import (
	"fmt"
	"time"
)

// DefaultThreshold is the remaining/limit ratio below which the monitor
// starts emitting advisories.
const DefaultThreshold = 0.10

// Status is the last rate limit state reported by the server. Nil counts
// mean the server did not send the corresponding header.
type Status struct {
	Limit     *int
	Remaining *int
	ResetAt   time.Time
}

// StatusProvider exposes the most recent Status seen on the wire.
type StatusProvider interface {
	RateLimitStatus() Status
}

// Monitor inspects a Status and reports when the remaining budget is low.
// It never blocks; pacing is left to the caller.
type Monitor struct {
	threshold float64
	now       func() time.Time
}

// NewMonitor returns a Monitor using threshold (DefaultThreshold if <= 0).
func NewMonitor(threshold float64) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Monitor{threshold: threshold, now: time.Now}
}

// WithClock replaces the monitor's time source.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Check returns an advisory when remaining/limit is below the threshold and
// the reset instant is strictly in the future.
func (m *Monitor) Check(s Status) (string, bool) {
	if s.Limit == nil || s.Remaining == nil || *s.Limit <= 0 {
		return "", false
	}
	ratio := float64(*s.Remaining) / float64(*s.Limit)
	if ratio >= m.threshold {
		return "", false
	}
	until := s.ResetAt.Sub(m.now())
	if until <= 0 {
		return "", false
	}
	secs := int(until.Seconds())
	return fmt.Sprintf("rate limit low: %d/%d requests remaining, resets in %ds", *s.Remaining, *s.Limit, secs), true
}
