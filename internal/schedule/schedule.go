// Package schedule holds the pure time and recurrence arithmetic the
// engine is built on. It has no dependencies beyond the standard
// library and no side effects, so every due/spawn decision is
// reproducible in tests with a fixed clock.
package schedule

import (
	"time"

	"taskping/internal/model"
)

// DefaultGrace is the tolerance after a reminder's exact trigger time
// during which a late tick may still fire it.
//
// This is the grace-window due policy: a reminder fires when the
// current time is at or past the trigger time and no more than the
// grace window late. The alternative exact-match policy (fire only
// within one minute of the trigger) silently drops reminders whenever
// a tick is delayed or the process was briefly down, so it is not
// used here.
const DefaultGrace = 10 * time.Minute

// TriggerTime returns the moment a reminder with the given lead time
// (minutes before the deadline) should fire.
func TriggerTime(deadline time.Time, offsetMinutes int) time.Time {
	return deadline.Add(-time.Duration(offsetMinutes) * time.Minute)
}

// IsDue reports whether a trigger time has been reached and is still
// inside the grace window at now.
func IsDue(trigger, now time.Time, grace time.Duration) bool {
	if now.Before(trigger) {
		return false
	}
	return now.Sub(trigger) <= grace
}

// NextOccurrence computes the deadline of the successor instance for
// a recurrence rule. Monthly rules add calendar months and clamp the
// day-of-month to the last valid day of the resulting month, so
// Jan 31 + 1 month lands on Feb 28/29 rather than overflowing into
// March.
func NextOccurrence(deadline time.Time, r model.Recurrence) time.Time {
	switch r.Freq {
	case model.FreqDaily:
		return deadline.AddDate(0, 0, r.Interval)
	case model.FreqWeekly:
		return deadline.AddDate(0, 0, 7*r.Interval)
	case model.FreqMonthly:
		return addMonthsClamped(deadline, r.Interval)
	}
	return deadline
}

// ShouldSpawn reports whether a successor at next is still inside the
// rule's termination bound.
func ShouldSpawn(next time.Time, r model.Recurrence) bool {
	if r.Until == nil {
		return true
	}
	return !next.After(*r.Until)
}

// addMonthsClamped shifts t by the given number of calendar months.
// time.AddDate normalizes an out-of-range day into the following
// month, which is exactly the overflow bug this function exists to
// avoid, so the month and day are computed by hand.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	month += time.Month(months)

	// Normalize the year/month pair without touching the day.
	anchor := time.Date(year, month, 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(anchor.Year(), anchor.Month()); day > last {
		day = last
	}

	h, m, s := t.Clock()
	return time.Date(anchor.Year(), anchor.Month(), day, h, m, s, t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in the given month. Day zero of
// the following month is the last day of this one.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
