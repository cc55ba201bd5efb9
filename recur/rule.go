/*
rule.go - Recurrence rule, unit and constraint types

PURPOSE:
  Defines the immutable description of a recurrence pattern: how often
  (interval + unit), which dates within the cycle count (constraint), and
  the start/end bounds.

KEY CONCEPTS:
  - Unit: closed enum of Day/Week/Month/Year. Every switch over Unit is
    exhaustive so a new unit is a compile-time exercise, not a grep.
  - Constraint: tagged variant. A weekday set pairs with Week, a
    day-of-month set with Month, a (month, day) set with Year. An empty
    set behaves as "no constraint".
  - Rule: interval + unit + constraint + start + optional end.

VALIDITY:
  A rule whose constraint does not match its unit is invalid. Invalid
  rules yield zero occurrences downstream; they never raise.

SEE ALSO:
  - matcher.go: The single constraint predicate
  - calculator.go: Occurrence generation
*/
package recur

import (
	"fmt"
	"sort"
	"time"

	"github.com/samber/mo"
)

// =============================================================================
// UNIT - How far one interval advances the cursor
// =============================================================================

type Unit int

const (
	UnitDay Unit = iota
	UnitWeek
	UnitMonth
	UnitYear
)

func (u Unit) String() string {
	switch u {
	case UnitDay:
		return "day"
	case UnitWeek:
		return "week"
	case UnitMonth:
		return "month"
	case UnitYear:
		return "year"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// ParseUnit parses the wire spelling of a unit (day/week/month/year).
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "day":
		return UnitDay, nil
	case "week":
		return UnitWeek, nil
	case "month":
		return UnitMonth, nil
	case "year":
		return UnitYear, nil
	default:
		return UnitDay, fmt.Errorf("%w: unknown unit %q", ErrInvalidPattern, s)
	}
}

// advance moves a date forward by n units. n is the rule interval, already
// clamped to >= 1 by the caller.
func advance(d CalendarDate, u Unit, n int) CalendarDate {
	switch u {
	case UnitDay:
		return d.AddDays(n)
	case UnitWeek:
		return d.AddWeeks(n)
	case UnitMonth:
		return d.AddMonths(n)
	case UnitYear:
		return d.AddYears(n)
	default:
		return d.AddDays(n)
	}
}

// =============================================================================
// CONSTRAINT - Which dates within the cycle count as occurrences
// =============================================================================

// MonthDay is a (month, day) pair for year-date constraints.
type MonthDay struct {
	Month time.Month
	Day   int
}

func (md MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day)
}

// before compares (month, day) pairs lexicographically.
func (md MonthDay) before(other MonthDay) bool {
	if md.Month != other.Month {
		return md.Month < other.Month
	}
	return md.Day < other.Day
}

type ConstraintKind int

const (
	ConstraintNone ConstraintKind = iota
	ConstraintWeekDays
	ConstraintMonthDays
	ConstraintYearDates
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintNone:
		return "none"
	case ConstraintWeekDays:
		return "weekdays"
	case ConstraintMonthDays:
		return "monthdays"
	case ConstraintYearDates:
		return "yeardates"
	default:
		return fmt.Sprintf("ConstraintKind(%d)", int(k))
	}
}

// Constraint restricts which interval-aligned dates count as occurrences.
// The zero value is "no constraint". Construct via OnWeekDays, OnMonthDays,
// OnYearDates or NoConstraint.
type Constraint struct {
	kind      ConstraintKind
	weekdays  map[time.Weekday]bool
	monthDays map[int]bool
	yearDates map[MonthDay]bool
}

func NoConstraint() Constraint {
	return Constraint{kind: ConstraintNone}
}

// OnWeekDays constrains occurrences to the given weekdays. Pairs with UnitWeek.
func OnWeekDays(days ...time.Weekday) Constraint {
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	return Constraint{kind: ConstraintWeekDays, weekdays: set}
}

// OnMonthDays constrains occurrences to the given days of the month (1-31).
// Pairs with UnitMonth.
func OnMonthDays(days ...int) Constraint {
	set := make(map[int]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	return Constraint{kind: ConstraintMonthDays, monthDays: set}
}

// OnYearDates constrains occurrences to the given (month, day) pairs.
// Pairs with UnitYear.
func OnYearDates(dates ...MonthDay) Constraint {
	set := make(map[MonthDay]bool, len(dates))
	for _, md := range dates {
		set[md] = true
	}
	return Constraint{kind: ConstraintYearDates, yearDates: set}
}

func (c Constraint) Kind() ConstraintKind { return c.kind }

// Size returns the number of values in the constraint set.
func (c Constraint) Size() int {
	switch c.kind {
	case ConstraintWeekDays:
		return len(c.weekdays)
	case ConstraintMonthDays:
		return len(c.monthDays)
	case ConstraintYearDates:
		return len(c.yearDates)
	default:
		return 0
	}
}

// IsUnconstrained reports whether the constraint filters nothing: either no
// constraint at all, or a constraint whose set is empty. Empty bracket lists
// in stored metadata decode to empty sets, and those must behave exactly
// like no constraint.
func (c Constraint) IsUnconstrained() bool {
	return c.kind == ConstraintNone || c.Size() == 0
}

// AllowsUnit reports whether the constraint may be paired with the unit.
// No constraint pairs with any unit.
func (c Constraint) AllowsUnit(u Unit) bool {
	switch c.kind {
	case ConstraintNone:
		return true
	case ConstraintWeekDays:
		return u == UnitWeek
	case ConstraintMonthDays:
		return u == UnitMonth
	case ConstraintYearDates:
		return u == UnitYear
	default:
		return false
	}
}

// WeekDays returns the weekday set in ascending order.
func (c Constraint) WeekDays() []time.Weekday {
	out := make([]time.Weekday, 0, len(c.weekdays))
	for d := range c.weekdays {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MonthDays returns the day-of-month set in ascending order.
func (c Constraint) MonthDays() []int {
	out := make([]int, 0, len(c.monthDays))
	for d := range c.monthDays {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// YearDates returns the (month, day) set in calendar order.
func (c Constraint) YearDates() []MonthDay {
	out := make([]MonthDay, 0, len(c.yearDates))
	for md := range c.yearDates {
		out = append(out, md)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].before(out[j]) })
	return out
}

// =============================================================================
// RULE - A complete recurrence pattern
// =============================================================================

// Rule describes a recurrence pattern. Immutable by convention: callers build
// a Rule once and pass it by value.
type Rule struct {
	// Interval is how many units separate occurrences. Values < 1 are
	// clamped to 1 during calculation.
	Interval int

	Unit       Unit
	Constraint Constraint

	// Start is the rule's anchor bound. The first occurrence is the first
	// constraint-matching date at or after Start.
	Start CalendarDate

	// End, when present, bounds occurrences inclusively. An End before
	// Start is not an error; such a rule simply yields zero occurrences.
	End mo.Option[CalendarDate]
}

// Validate checks structural validity: the constraint must pair with the
// unit and the start bound must be set. Interval is not validated here;
// out-of-range intervals are clamped, matching the tolerant handling of
// stored data.
func (r Rule) Validate() error {
	if r.Start.IsZero() {
		return fmt.Errorf("%w: missing start date", ErrInvalidPattern)
	}
	if !r.Constraint.AllowsUnit(r.Unit) {
		return fmt.Errorf("%w: %v constraint does not pair with unit %v",
			ErrInvalidPattern, r.Constraint.kind, r.Unit)
	}
	return nil
}

// normalized returns a copy with the interval clamped to >= 1.
func (r Rule) normalized() Rule {
	if r.Interval < 1 {
		r.Interval = 1
	}
	return r
}

// pastEnd reports whether d falls after the rule's end bound.
func (r Rule) pastEnd(d CalendarDate) bool {
	end, ok := r.End.Get()
	return ok && d.After(end)
}

// capEnd wraps d in an Option, empty if d falls past the end bound.
func (r Rule) capEnd(d CalendarDate) mo.Option[CalendarDate] {
	if r.pastEnd(d) {
		return mo.None[CalendarDate]()
	}
	return mo.Some(d)
}
