// Package clock abstracts wall time so components can be tested with
// deterministic timestamps.
package clock

import (
	"sync"
	"time"
)

// Layout is the fixed-width RFC 3339 form for persisted timestamps. Unlike
// time.RFC3339Nano it never trims trailing zeros from the fractional second,
// so the store's lexicographic TEXT ordering matches chronological order.
const Layout = "2006-01-02T15:04:05.000000000Z07:00"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Wall is the production clock.
type Wall struct{}

// Now returns the current UTC time.
func (Wall) Now() time.Time { return time.Now().UTC() }

// Fixed returns a predetermined time, optionally advancing by a fixed step
// on every call so successive events remain distinguishable in tests.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Fixed struct {
	mu   sync.Mutex
	at   time.Time
	step time.Duration
}

// NewFixed creates a clock pinned at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{at: t}
}

// NewStepping creates a clock starting at t that advances by step per call.
func NewStepping(t time.Time, step time.Duration) *Fixed {
	return &Fixed{at: t, step: step}
}

// Now returns the pinned time, then advances it by the configured step.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.at
	f.at = f.at.Add(f.step)
	return now
}
