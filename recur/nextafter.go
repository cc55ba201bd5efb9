/*
nextafter.go - Next occurrence after a completed one

PURPOSE:
  Resolves the single occurrence that follows a specific, known occurrence.
  Used when a task instance is completed: the next instance is computed
  from the completed date, NOT from today.

WHY NOT Occurrences(rule, today, 1)?
  Two reasons. First, that call is anchored to today, so completing a
  weekly Sunday task on a Saturday start date would keep the Saturday.
  Second, a rule with several constraint values in the same period (weekly
  on Mon+Wed+Fri, say) must yield the NEXT value in the same period after
  a completion - Wednesday after Monday, not next week's Monday. The
  generic calculator always jumps a full interval after a match.

SEE ALSO:
  - calculator.go: Reference-date-anchored generation (shares nextMatch)
*/
package recur

import "github.com/samber/mo"

// NextAfter returns the occurrence following prev under the rule, or an
// empty Option when the rule is invalid, the end bound is exceeded, or the
// bounded search finds nothing.
//
// Rules with more than one constraint value in the same period are resolved
// within that period first: weekly Mon+Wed+Fri completed on Monday yields
// Wednesday of the same week. Only when the period is exhausted does the
// cursor roll forward by the full interval.
func NextAfter(rule Rule, prev CalendarDate) mo.Option[CalendarDate] {
	if err := rule.Validate(); err != nil {
		return mo.None[CalendarDate]()
	}
	r := rule.normalized()
	c := r.Constraint

	if r.Unit == UnitWeek && c.Kind() == ConstraintWeekDays && c.Size() > 1 {
		// Another constrained weekday may remain in the current week.
		// Scanning 6 days covers every other weekday exactly once.
		for i := 1; i <= 6; i++ {
			d := prev.AddDays(i)
			if c.Matches(d) {
				return r.capEnd(d)
			}
		}
	}

	if r.Unit == UnitMonth && c.Kind() == ConstraintMonthDays && c.Size() > 1 {
		if d, ok := nextMonthDayInMonth(c, prev); ok {
			return r.capEnd(d)
		}
	}

	if r.Unit == UnitYear && c.Kind() == ConstraintYearDates && c.Size() > 1 {
		if d, ok := nextYearDateInYear(c, prev); ok {
			return r.capEnd(d)
		}
	}

	// Single (or no) constraint value, or the current period is exhausted:
	// advance a full interval, then snap to the next match.
	next, ok := nextMatch(c, advance(prev, r.Unit, r.Interval))
	if !ok {
		return mo.None[CalendarDate]()
	}
	return r.capEnd(next)
}

// nextMonthDayInMonth finds the smallest constrained day-of-month after
// prev's day that is a real date in prev's month. February 30 is not a
// real date and is skipped, not normalized into March.
func nextMonthDayInMonth(c Constraint, prev CalendarDate) (CalendarDate, bool) {
	for _, day := range c.MonthDays() {
		if day <= prev.Day() {
			continue
		}
		d := NewCalendarDate(prev.Year(), prev.Month(), day)
		if d.Month() == prev.Month() && d.Day() == day {
			return d, true
		}
	}
	return CalendarDate{}, false
}

// nextYearDateInYear finds the first constrained (month, day) after prev's
// (month, day) that is a real date in prev's year. February 29 outside a
// leap year is skipped.
func nextYearDateInYear(c Constraint, prev CalendarDate) (CalendarDate, bool) {
	cur := prev.MonthDay()
	for _, md := range c.YearDates() {
		if !cur.before(md) {
			continue
		}
		d := NewCalendarDate(prev.Year(), md.Month, md.Day)
		if d.Month() == md.Month && d.Day() == md.Day {
			return d, true
		}
	}
	return CalendarDate{}, false
}
