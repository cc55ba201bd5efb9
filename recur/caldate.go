/*
Package recur provides the core recurrence calculation engine.

PURPOSE:
  This package contains the pure types and algorithms that turn a recurrence
  rule (every N days/weeks/months/years, optionally filtered by weekday,
  day-of-month, or month-day) into concrete occurrence dates. It decides when
  a recurring task falls due; it never touches storage or raw text.

KEY CONCEPTS IN THIS FILE (caldate.go):
  - CalendarDate: An immutable whole calendar day (no time-of-day)

DESIGN PRINCIPLES:
  1. Immutability: Every "advance" operation returns a new CalendarDate.
     Cursors are never mutated in place, so a date shared between phases
     of a calculation cannot drift.
  2. Totality: Every function is defined for every valid date. Impossible
     inputs degrade to empty results, never panics.
  3. Bounded search: Every day-by-day loop in this package has a fixed
     iteration ceiling. A rule that can never be satisfied returns nothing
     instead of hanging the caller.

USAGE:
  start := recur.NewCalendarDate(2025, time.October, 18)
  rule := recur.Rule{
      Interval:   1,
      Unit:       recur.UnitWeek,
      Constraint: recur.OnWeekDays(time.Sunday),
      Start:      start,
  }
  dates := recur.Occurrences(rule, recur.Today(), 5)

SEE ALSO:
  - rule.go: Rule, Unit and Constraint definitions
  - calculator.go: Occurrence generation
  - nextafter.go: Next occurrence after a completion
*/
package recur

import (
	"fmt"
	"time"
)

// =============================================================================
// CALENDAR DATE - Immutable whole-day civil date
// =============================================================================

// CalendarDate is a whole calendar day with no time-of-day component.
// The zero value is the zero time; use IsZero to detect it.
// Comparable, so it can be used as a map key.
type CalendarDate struct {
	t time.Time
}

// NewCalendarDate builds a date, normalizing out-of-range components the way
// time.Date does (month 13 rolls into the next year, etc.).
func NewCalendarDate(year int, month time.Month, day int) CalendarDate {
	return CalendarDate{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current local calendar date.
func Today() CalendarDate {
	now := time.Now()
	return NewCalendarDate(now.Year(), now.Month(), now.Day())
}

// DateOf truncates a time.Time to its calendar date.
func DateOf(t time.Time) CalendarDate {
	return NewCalendarDate(t.Year(), t.Month(), t.Day())
}

// ParseCalendarDate parses a YYYY-MM-DD string.
func ParseCalendarDate(s string) (CalendarDate, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return CalendarDate{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// Comparison
func (d CalendarDate) Before(other CalendarDate) bool        { return d.t.Before(other.t) }
func (d CalendarDate) After(other CalendarDate) bool         { return d.t.After(other.t) }
func (d CalendarDate) Equal(other CalendarDate) bool         { return d.t.Equal(other.t) }
func (d CalendarDate) BeforeOrEqual(other CalendarDate) bool { return !d.After(other) }
func (d CalendarDate) AfterOrEqual(other CalendarDate) bool  { return !d.Before(other) }

// Arithmetic. All return new values.
func (d CalendarDate) AddDays(n int) CalendarDate   { return CalendarDate{t: d.t.AddDate(0, 0, n)} }
func (d CalendarDate) AddWeeks(n int) CalendarDate  { return CalendarDate{t: d.t.AddDate(0, 0, 7*n)} }
func (d CalendarDate) AddMonths(n int) CalendarDate { return CalendarDate{t: d.t.AddDate(0, n, 0)} }
func (d CalendarDate) AddYears(n int) CalendarDate  { return CalendarDate{t: d.t.AddDate(n, 0, 0)} }

// Properties
func (d CalendarDate) Year() int             { return d.t.Year() }
func (d CalendarDate) Month() time.Month     { return d.t.Month() }
func (d CalendarDate) Day() int              { return d.t.Day() }
func (d CalendarDate) Weekday() time.Weekday { return d.t.Weekday() }
func (d CalendarDate) IsZero() bool          { return d.t.IsZero() }

// MonthDay returns the (month, day) pair, the key used by year-date constraints.
func (d CalendarDate) MonthDay() MonthDay {
	return MonthDay{Month: d.t.Month(), Day: d.t.Day()}
}

func (d CalendarDate) String() string {
	return d.t.Format("2006-01-02")
}

// MarshalJSON encodes the date as a "YYYY-MM-DD" string.
func (d CalendarDate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a "YYYY-MM-DD" string.
func (d *CalendarDate) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("%w: %s", ErrInvalidDate, s)
	}
	parsed, err := ParseCalendarDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween returns the number of days from one date to another.
func DaysBetween(from, to CalendarDate) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}
