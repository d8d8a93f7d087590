package scheduler

import (
	"fmt"
	"time"

	"platewatch/internal/components/chrono"
)

// Window is a daily hour range (both bounds inclusive) during which a task is
// run every Interval.
type Window struct {
	StartHour int
	EndHour   int
	Interval  time.Duration
	// Immediate runs the task as soon as the window is entered instead of
	// waiting for the first tick.
	Immediate bool
	// AlignToTop starts periodic mode at the next top of the hour.
	AlignToTop bool
}

func (w Window) Validate() error {
	if w.StartHour < 0 || w.EndHour > 23 || w.StartHour > w.EndHour {
		return fmt.Errorf("invalid window %02d:00-%02d:59, expected 0 <= start <= end <= 23", w.StartHour, w.EndHour)
	}
	if w.Interval <= 0 {
		return fmt.Errorf("invalid window interval %s", w.Interval)
	}
	return nil
}

func (w Window) Contains(t time.Time) bool {
	h := t.Hour()
	return h >= w.StartHour && h <= w.EndHour
}

// NextStart returns the next instant the window opens after t, which is
// either later today or tomorrow at StartHour:00.
func (w Window) NextStart(t time.Time) time.Time {
	next, err := chrono.NextMatch(fmt.Sprintf("0 %d * * *", w.StartHour), t)
	if err != nil {
		// StartHour is validated, the expression above is always well formed.
		panic(err)
	}
	return next
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:00-%02d:59 every %s", w.StartHour, w.EndHour, w.Interval)
}

// NextTopOfHour returns the next hh:00:00 strictly after t.
func NextTopOfHour(t time.Time) time.Time {
	next, err := chrono.NextMatch("0 * * * *", t)
	if err != nil {
		panic(err)
	}
	return next
}

// nextTick returns the first tick on the prev + k*interval grid that is not
// already in the past, along with the number of ticks that were skipped
// because a run was still in flight when they became due.
func nextTick(prev, now time.Time, interval time.Duration) (time.Time, int) {
	next := prev.Add(interval)
	skipped := 0
	for next.Before(now) {
		next = next.Add(interval)
		skipped++
	}
	return next, skipped
}
