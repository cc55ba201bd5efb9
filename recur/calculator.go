/*
calculator.go - Bounded occurrence generation

PURPOSE:
  Turns a Rule into a finite, strictly increasing sequence of occurrence
  dates. Pure function of its inputs: same rule, same reference date, same
  count - same output, every time.

ALGORITHM (three independently bounded phases):
  1. Anchor:   from the rule's start bound, walk day-by-day to the first
               date the constraint accepts. This is what makes a weekly
               Sunday rule started on a Saturday fire on the Sunday.
  2. Catch-up: walk the anchored cursor forward through history until it
               reaches the reference date - interval jumps when the cursor
               sits on a match, single-day steps otherwise.
  3. Generate: emit matches; after each emission advance one interval and
               re-snap to the next match.

TERMINATION:
  Every loop is bounded by maxSearchSteps. A constraint that can never be
  satisfied, or a cursor too far in the past to catch up within budget,
  produces fewer (possibly zero) occurrences - never an infinite loop.
  The ceiling of 1000 steps covers any legitimate personal-task horizon
  (roughly 19 years of weekly jumps, 83 years of monthly ones).

SEE ALSO:
  - matcher.go: The constraint predicate used throughout
  - nextafter.go: Completion-anchored resolution (shares nextMatch)
*/
package recur

// maxSearchSteps bounds every day-by-day search and the catch-up walk.
const maxSearchSteps = 1000

// nextMatch walks day-by-day from the given date to the first date the
// constraint accepts. The second return value is false when the step budget
// runs out before a match is found. This is the ONLY day-by-day search in
// the engine; both the calculator and NextAfter go through it.
func nextMatch(c Constraint, from CalendarDate) (CalendarDate, bool) {
	cursor := from
	for i := 0; i < maxSearchSteps; i++ {
		if c.Matches(cursor) {
			return cursor, true
		}
		cursor = cursor.AddDays(1)
	}
	return CalendarDate{}, false
}

// Occurrences returns up to count occurrence dates for the rule, starting
// from the first occurrence at or after asOf. The result is strictly
// increasing and never extends past the rule's end bound.
//
// Invalid rules (constraint/unit mismatch, missing start) and exhausted
// search budgets both degrade to a shorter - possibly empty - result.
// Occurrences never returns an error and never loops unboundedly.
func Occurrences(rule Rule, asOf CalendarDate, count int) []CalendarDate {
	if count <= 0 {
		return nil
	}
	if err := rule.Validate(); err != nil {
		return nil
	}
	r := rule.normalized()

	// Phase 1: anchor at the first theoretically valid occurrence,
	// independent of asOf.
	cursor, ok := nextMatch(r.Constraint, r.Start)
	if !ok {
		return nil
	}

	// Phase 2: catch up to asOf. A cursor on a match jumps a full
	// interval; a cursor off a match searches by single days. A start
	// bound in the future leaves this a no-op.
	steps := 0
	for cursor.Before(asOf) {
		if steps >= maxSearchSteps {
			return nil
		}
		steps++
		if r.Constraint.Matches(cursor) {
			cursor = advance(cursor, r.Unit, r.Interval)
		} else {
			cursor = cursor.AddDays(1)
		}
	}

	// Phase 3: generate. The cursor may have overshot a match during
	// catch-up, so re-check before each emission.
	var out []CalendarDate
	for len(out) < count {
		if r.pastEnd(cursor) {
			return out
		}
		if r.Constraint.Matches(cursor) {
			out = append(out, cursor)
			next, ok := nextMatch(r.Constraint, advance(cursor, r.Unit, r.Interval))
			if !ok {
				return out
			}
			cursor = next
		} else {
			next, ok := nextMatch(r.Constraint, cursor.AddDays(1))
			if !ok {
				return out
			}
			cursor = next
		}
	}
	return out
}
