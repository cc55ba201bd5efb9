package recur

// =============================================================================
// CONSTRAINT MATCHER - The single "is this date a valid occurrence" predicate
// =============================================================================

// Matches reports whether the date satisfies the constraint. This is the one
// source of truth for occurrence validity: the calculator, the next-after
// resolver and every test use this same predicate. Do not re-implement the
// check elsewhere.
//
// An absent or empty constraint matches every date.
func (c Constraint) Matches(d CalendarDate) bool {
	if c.IsUnconstrained() {
		return true
	}
	switch c.kind {
	case ConstraintWeekDays:
		return c.weekdays[d.Weekday()]
	case ConstraintMonthDays:
		return c.monthDays[d.Day()]
	case ConstraintYearDates:
		return c.yearDates[d.MonthDay()]
	default:
		return true
	}
}
