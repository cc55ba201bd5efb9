package recur_test

import (
	"testing"
	"time"

	"github.com/warp/recurrence-engine/recur"
)

func date(y int, m time.Month, d int) recur.CalendarDate {
	return recur.NewCalendarDate(y, m, d)
}

func TestMatches_WeekDays(t *testing.T) {
	c := recur.OnWeekDays(time.Monday, time.Friday)

	if !c.Matches(date(2025, time.October, 20)) { // Monday
		t.Error("expected Monday to match")
	}
	if !c.Matches(date(2025, time.October, 24)) { // Friday
		t.Error("expected Friday to match")
	}
	if c.Matches(date(2025, time.October, 22)) { // Wednesday
		t.Error("expected Wednesday not to match")
	}
}

func TestMatches_MonthDays(t *testing.T) {
	c := recur.OnMonthDays(1, 15)

	if !c.Matches(date(2025, time.March, 15)) {
		t.Error("expected the 15th to match")
	}
	if c.Matches(date(2025, time.March, 14)) {
		t.Error("expected the 14th not to match")
	}
}

func TestMatches_YearDates(t *testing.T) {
	c := recur.OnYearDates(recur.MonthDay{Month: time.December, Day: 24})

	if !c.Matches(date(2025, time.December, 24)) {
		t.Error("expected Dec 24 to match")
	}
	if c.Matches(date(2025, time.December, 25)) {
		t.Error("expected Dec 25 not to match")
	}
	if !c.Matches(date(2030, time.December, 24)) {
		t.Error("expected Dec 24 to match in any year")
	}
}

func TestMatches_NoConstraint_AlwaysTrue(t *testing.T) {
	c := recur.NoConstraint()
	for i := 0; i < 10; i++ {
		if !c.Matches(date(2025, time.January, 1).AddDays(i)) {
			t.Fatalf("expected no constraint to match every date")
		}
	}
}

func TestMatches_EmptySet_BehavesAsUnconstrained(t *testing.T) {
	// Stored metadata with an empty bracket list (wday::[]) decodes to an
	// empty set, which must behave exactly like no constraint.
	for _, c := range []recur.Constraint{
		recur.OnWeekDays(),
		recur.OnMonthDays(),
		recur.OnYearDates(),
	} {
		if !c.IsUnconstrained() {
			t.Errorf("%v: expected empty set to be unconstrained", c.Kind())
		}
		if !c.Matches(date(2025, time.June, 3)) {
			t.Errorf("%v: expected empty set to match", c.Kind())
		}
	}
}
