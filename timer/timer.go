// Package timer provides the connection's clock abstraction: an
// interruptible sleep-until primitive for the pacer (§5: "the pacer
// suspends in Timer::sleep_to(next_ts) which is interruptible"). A
// mux.SndQueue derives a per-sleep context from its own run context and
// cancels it from Wake, so SleepTo's existing ctx.Done() case is the
// interrupt path — no separate signal channel is needed.
package timer

import (
	"context"
	"time"
)

// Clock abstracts wall-clock access so tests can substitute a fake clock
// without the connection code depending on time.Now directly.
type Clock interface {
	Now() time.Time
}

// SystemClock is the Clock backed by the real wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// SleepTo blocks until ts or until ctx is canceled, whichever comes
// first. It returns true if it returned because ts was reached,
// false if interrupted early (a new packet became due sooner, or the
// connection is tearing down).
func SleepTo(ctx context.Context, ts time.Time) bool {
	d := time.Until(ts)
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
