// Package timehealth implements time synchronization and health reporting
// (spec component C7): a minimal SNTP client, the one-way clock-valid
// latch that gates plan playback, and the HTTP health/readiness/metrics
// endpoints.
package timehealth

import (
	"sync/atomic"
	"time"
)

// TimeValidEpoch is the sentinel: wall-clock time must exceed this before
// the clock is considered synced. No third-party module in this stack
// exposes a synced-clock sentinel primitive, so the latch is a plain
// atomic flag flipped by ClockLatch.Check.
var TimeValidEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ClockLatch is the one-way "is the wall clock trustworthy yet" flag. It
// transitions false->true exactly once and never flips back.
type ClockLatch struct {
	valid atomic.Bool
}

// Check observes now and latches valid if now is past TimeValidEpoch.
// Safe to call from any goroutine; a no-op once already latched.
func (l *ClockLatch) Check(now time.Time) {
	if l.valid.Load() {
		return
	}
	if now.After(TimeValidEpoch) {
		l.valid.Store(true)
	}
}

// Valid reports whether the clock has ever been observed past the sentinel
// epoch.
func (l *ClockLatch) Valid() bool { return l.valid.Load() }
