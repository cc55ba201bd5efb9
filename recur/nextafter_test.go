package recur_test

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/warp/recurrence-engine/recur"
)

func mustGet(t *testing.T, opt mo.Option[recur.CalendarDate]) recur.CalendarDate {
	t.Helper()
	d, ok := opt.Get()
	if !ok {
		t.Fatal("expected a next occurrence, got none")
	}
	return d
}

// =============================================================================
// SAME-PERIOD MULTI-VALUE RESOLUTION
// =============================================================================

func TestNextAfter_MultiWeekday_SameWeek(t *testing.T) {
	// GIVEN: Weekly Mon+Wed+Fri rule
	// WHEN: Completing Monday's occurrence
	// THEN: Next is Wednesday of the SAME week, not next week's Monday

	rule := recur.Rule{
		Interval:   1,
		Unit:       recur.UnitWeek,
		Constraint: recur.OnWeekDays(time.Monday, time.Wednesday, time.Friday),
		Start:      date(2025, time.October, 20),
	}

	got := mustGet(t, recur.NextAfter(rule, date(2025, time.October, 20))) // Monday
	want := date(2025, time.October, 22)                                   // Wednesday
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNextAfter_MultiWeekday_RollsToNextWeek(t *testing.T) {
	// Completing Friday, the last constrained day of the week, rolls to
	// the following Monday.
	rule := recur.Rule{
		Interval:   1,
		Unit:       recur.UnitWeek,
		Constraint: recur.OnWeekDays(time.Monday, time.Wednesday, time.Friday),
		Start:      date(2025, time.October, 20),
	}

	got := mustGet(t, recur.NextAfter(rule, date(2025, time.October, 24))) // Friday
	want := date(2025, time.October, 27)                                   // next Monday
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNextAfter_SingleWeekday_IntervalApplies(t *testing.T) {
	// GIVEN: Every-2-weeks Monday rule
	// WHEN: Completing 2025-10-20
	// THEN: Next is 2025-11-03, two weeks later

	rule := recur.Rule{
		Interval:   2,
		Unit:       recur.UnitWeek,
		Constraint: recur.OnWeekDays(time.Monday),
		Start:      date(2025, time.October, 20),
	}

	got := mustGet(t, recur.NextAfter(rule, date(2025, time.October, 20)))
	want := date(2025, time.November, 3)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNextAfter_MultiMonthDay_SameMonth(t *testing.T) {
	rule := recur.Rule{
		Interval:   1,
		Unit:       recur.UnitMonth,
		Constraint: recur.OnMonthDays(1, 15, 28),
		Start:      date(2025, time.January, 1),
	}

	got := mustGet(t, recur.NextAfter(rule, date(2025, time.March, 15)))
	want := date(2025, time.March, 28)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNextAfter_MultiMonthDay_SkipsUnrealDate(t *testing.T) {
	// GIVEN: Monthly rule on the 15th and 31st
	// WHEN: Completing February 15 (February has no 31st)
	// THEN: Next rolls to March, skipping the impossible same-month value

	rule := recur.Rule{
		Interval:   1,
		Unit:       recur.UnitMonth,
		Constraint: recur.OnMonthDays(15, 31),
		Start:      date(2025, time.January, 15),
	}

	got := mustGet(t, recur.NextAfter(rule, date(2025, time.February, 15)))
	want := date(2025, time.March, 15)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNextAfter_MultiYearDate_SameYear(t *testing.T) {
	rule := recur.Rule{
		Interval: 1,
		Unit:     recur.UnitYear,
		Constraint: recur.OnYearDates(
			recur.MonthDay{Month: time.April, Day: 1},
			recur.MonthDay{Month: time.October, Day: 31},
		),
		Start: date(2025, time.January, 1),
	}

	got := mustGet(t, recur.NextAfter(rule, date(2025, time.April, 1)))
	want := date(2025, time.October, 31)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// Completing the last date of the year exhausts the same-year scan;
	// the cursor then advances by the full interval from the completed
	// date and snaps forward to the next match.
	got = mustGet(t, recur.NextAfter(rule, date(2025, time.October, 31)))
	want = date(2026, time.October, 31)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// =============================================================================
// FALLBACK AND BOUNDS
// =============================================================================

func TestNextAfter_Unconstrained_AdvancesOneInterval(t *testing.T) {
	rule := recur.Rule{
		Interval: 3,
		Unit:     recur.UnitMonth,
		Start:    date(2025, time.January, 10),
	}

	got := mustGet(t, recur.NextAfter(rule, date(2025, time.April, 10)))
	want := date(2025, time.July, 10)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNextAfter_PastEnd_ReturnsNone(t *testing.T) {
	rule := recur.Rule{
		Interval:   1,
		Unit:       recur.UnitWeek,
		Constraint: recur.OnWeekDays(time.Monday),
		Start:      date(2025, time.October, 20),
		End:        mo.Some(date(2025, time.October, 25)),
	}

	if next := recur.NextAfter(rule, date(2025, time.October, 20)); next.IsPresent() {
		d, _ := next.Get()
		t.Errorf("expected no next occurrence past end bound, got %v", d)
	}
}

func TestNextAfter_MultiWeekday_EndCapsSameWeek(t *testing.T) {
	// The same-week candidate itself may sit past the end bound.
	rule := recur.Rule{
		Interval:   1,
		Unit:       recur.UnitWeek,
		Constraint: recur.OnWeekDays(time.Monday, time.Friday),
		Start:      date(2025, time.October, 20),
		End:        mo.Some(date(2025, time.October, 22)),
	}

	if next := recur.NextAfter(rule, date(2025, time.October, 20)); next.IsPresent() {
		d, _ := next.Get()
		t.Errorf("expected no next occurrence, got %v", d)
	}
}

func TestNextAfter_InvalidRule_ReturnsNone(t *testing.T) {
	rule := recur.Rule{
		Interval:   1,
		Unit:       recur.UnitWeek,
		Constraint: recur.OnMonthDays(15),
		Start:      date(2025, time.October, 20),
	}

	if next := recur.NextAfter(rule, date(2025, time.October, 20)); next.IsPresent() {
		t.Error("expected no next occurrence for invalid rule")
	}
}

func TestNextAfter_UnsatisfiableConstraint_TerminatesNone(t *testing.T) {
	rule := recur.Rule{
		Interval:   1,
		Unit:       recur.UnitYear,
		Constraint: recur.OnYearDates(recur.MonthDay{Month: time.February, Day: 30}),
		Start:      date(2025, time.January, 1),
	}

	done := make(chan mo.Option[recur.CalendarDate], 1)
	go func() { done <- recur.NextAfter(rule, date(2025, time.June, 1)) }()

	select {
	case next := <-done:
		if next.IsPresent() {
			t.Error("expected no next occurrence for unsatisfiable constraint")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("NextAfter did not terminate for unsatisfiable constraint")
	}
}
