package task

import (
	"time"

	"github.com/warp/recurrence-engine/recur"
)

// =============================================================================
// CLOCK - Injected time source
// =============================================================================

// Clock supplies the current time. The lifecycle's 24-hour materialization
// gate and every "today" computation go through it, so tests control time
// without wall-clock waits.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock implementation.
func SystemClock() Clock { return systemClock{} }

// todayFor truncates the clock's time to a calendar date.
func todayFor(c Clock) recur.CalendarDate {
	return recur.DateOf(c.Now())
}

// FixedClock is a settable clock for tests and deterministic replays.
type FixedClock struct {
	Current time.Time
}

func (f *FixedClock) Now() time.Time { return f.Current }

// Advance moves the fixed clock forward.
func (f *FixedClock) Advance(d time.Duration) { f.Current = f.Current.Add(d) }
