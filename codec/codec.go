/*
Package codec converts between the line-oriented field encoding and engine types.

PURPOSE:
  Recurring tasks live as single markdown lines whose metadata rides inline
  as key::value fields. This package is the only place that touches that
  raw text; the engine itself works purely on recur types.

FIELD SYNTAX (spellings are load-bearing - existing stored data uses them):
  recurring::<int><unit>     interval + unit, unit in {day,week,month,year}
  starting::YYYY-MM-DD       rule start bound (defaults to today if absent)
  ending::YYYY-MM-DD         rule end bound ("never" or absent = unbounded)
  wday::[mon,wed,...]        weekday constraint, lowercase three-letter names
  day::[1,15,30]             day-of-month constraint
  month::[mm-dd,mm-dd]       (month, day) constraint
  due::YYYY-MM-DD            due date of a concrete instance

TOLERANCE:
  Empty bracket lists decode to empty constraint sets, which the engine
  treats as unconstrained. A malformed recurring:: field is an
  ErrInvalidPattern; the caller shows the task without a recurrence
  indicator and materializes nothing.

SEE ALSO:
  - recur/rule.go: The types this encodes/decodes
  - store/sqlite: Persists rules in this same encoding
*/
package codec

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/warp/recurrence-engine/recur"
)

// =============================================================================
// FIELD NAMES - exact spellings required by existing stored data
// =============================================================================

const (
	FieldRecurring = "recurring"
	FieldStarting  = "starting"
	FieldEnding    = "ending"
	FieldWeekDays  = "wday"
	FieldMonthDays = "day"
	FieldYearDates = "month"
	FieldDue       = "due"

	// EndingNever is the ending:: value meaning "no end bound".
	EndingNever = "never"
)

var (
	fieldPattern     = regexp.MustCompile(`(recurring|starting|ending|wday|day|month|due)::(\S*)`)
	recurringPattern = regexp.MustCompile(`^(\d+)(day|week|month|year)$`)
	yearDatePattern  = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})$`)
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// weekdayName is the inverse of weekdayNames, for encoding.
var weekdayName = map[time.Weekday]string{
	time.Sunday:    "sun",
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
}

// =============================================================================
// FIELD EXTRACTION
// =============================================================================

// ExtractFields pulls every known key::value field out of a task line.
// Later duplicates win, matching how the stored format is edited in place.
func ExtractFields(line string) map[string]string {
	fields := make(map[string]string)
	for _, m := range fieldPattern.FindAllStringSubmatch(line, -1) {
		fields[m[1]] = m[2]
	}
	return fields
}

// StripFields removes every known key::value field from a task line,
// leaving the human-readable text.
func StripFields(line string) string {
	stripped := fieldPattern.ReplaceAllString(line, "")
	return strings.Join(strings.Fields(stripped), " ")
}

// =============================================================================
// RULE DECODING
// =============================================================================

// DecodeRule builds a recurrence rule from extracted fields. The today
// argument supplies the default start bound when starting:: is absent.
//
// A missing or malformed recurring:: field, an unparseable date, or a
// constraint that does not pair with the unit returns ErrInvalidPattern
// (wrapped with context).
func DecodeRule(fields map[string]string, today recur.CalendarDate) (recur.Rule, error) {
	raw, ok := fields[FieldRecurring]
	if !ok {
		return recur.Rule{}, fmt.Errorf("%w: no %s:: field", recur.ErrInvalidPattern, FieldRecurring)
	}

	m := recurringPattern.FindStringSubmatch(raw)
	if m == nil {
		return recur.Rule{}, fmt.Errorf("%w: %s::%s", recur.ErrInvalidPattern, FieldRecurring, raw)
	}
	interval, err := strconv.Atoi(m[1])
	if err != nil {
		return recur.Rule{}, fmt.Errorf("%w: interval %q", recur.ErrInvalidPattern, m[1])
	}
	unit, err := recur.ParseUnit(m[2])
	if err != nil {
		return recur.Rule{}, err
	}

	start := today
	if s, ok := fields[FieldStarting]; ok {
		start, err = recur.ParseCalendarDate(s)
		if err != nil {
			return recur.Rule{}, fmt.Errorf("%w: %s::%s", recur.ErrInvalidPattern, FieldStarting, s)
		}
	}

	end := mo.None[recur.CalendarDate]()
	if s, ok := fields[FieldEnding]; ok && s != EndingNever {
		d, err := recur.ParseCalendarDate(s)
		if err != nil {
			return recur.Rule{}, fmt.Errorf("%w: %s::%s", recur.ErrInvalidPattern, FieldEnding, s)
		}
		end = mo.Some(d)
	}

	constraint, err := decodeConstraint(fields)
	if err != nil {
		return recur.Rule{}, err
	}

	rule := recur.Rule{
		Interval:   interval,
		Unit:       unit,
		Constraint: constraint,
		Start:      start,
		End:        end,
	}
	if err := rule.Validate(); err != nil {
		return recur.Rule{}, err
	}
	return rule, nil
}

func decodeConstraint(fields map[string]string) (recur.Constraint, error) {
	if raw, ok := fields[FieldWeekDays]; ok {
		names, err := splitBracketList(FieldWeekDays, raw)
		if err != nil {
			return recur.Constraint{}, err
		}
		days := make([]time.Weekday, 0, len(names))
		for _, name := range names {
			wd, ok := weekdayNames[name]
			if !ok {
				return recur.Constraint{}, fmt.Errorf("%w: unknown weekday %q", recur.ErrInvalidPattern, name)
			}
			days = append(days, wd)
		}
		return recur.OnWeekDays(days...), nil
	}

	if raw, ok := fields[FieldMonthDays]; ok {
		items, err := splitBracketList(FieldMonthDays, raw)
		if err != nil {
			return recur.Constraint{}, err
		}
		days := make([]int, 0, len(items))
		for _, item := range items {
			n, err := strconv.Atoi(item)
			if err != nil || n < 1 || n > 31 {
				return recur.Constraint{}, fmt.Errorf("%w: day-of-month %q", recur.ErrInvalidPattern, item)
			}
			days = append(days, n)
		}
		return recur.OnMonthDays(days...), nil
	}

	if raw, ok := fields[FieldYearDates]; ok {
		items, err := splitBracketList(FieldYearDates, raw)
		if err != nil {
			return recur.Constraint{}, err
		}
		dates := make([]recur.MonthDay, 0, len(items))
		for _, item := range items {
			m := yearDatePattern.FindStringSubmatch(item)
			if m == nil {
				return recur.Constraint{}, fmt.Errorf("%w: month-day %q", recur.ErrInvalidPattern, item)
			}
			month, _ := strconv.Atoi(m[1])
			day, _ := strconv.Atoi(m[2])
			if month < 1 || month > 12 || day < 1 || day > 31 {
				return recur.Constraint{}, fmt.Errorf("%w: month-day %q out of range", recur.ErrInvalidPattern, item)
			}
			dates = append(dates, recur.MonthDay{Month: time.Month(month), Day: day})
		}
		return recur.OnYearDates(dates...), nil
	}

	return recur.NoConstraint(), nil
}

// splitBracketList parses "[a,b,c]". An empty list "[]" is allowed and
// returns no items.
func splitBracketList(field, raw string) ([]string, error) {
	if len(raw) < 2 || raw[0] != '[' || raw[len(raw)-1] != ']' {
		return nil, fmt.Errorf("%w: %s::%s is not a bracket list", recur.ErrInvalidPattern, field, raw)
	}
	inner := strings.TrimSpace(raw[1 : len(raw)-1])
	if inner == "" {
		return nil, nil
	}
	parts := strings.Split(inner, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

// =============================================================================
// RULE ENCODING
// =============================================================================

// EncodeRule renders a rule back into its field encoding, in canonical
// field order. The output round-trips through DecodeRule.
func EncodeRule(r recur.Rule) string {
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}
	parts := []string{
		fmt.Sprintf("%s::%d%s", FieldRecurring, interval, r.Unit),
		fmt.Sprintf("%s::%s", FieldStarting, r.Start),
	}

	if end, ok := r.End.Get(); ok {
		parts = append(parts, fmt.Sprintf("%s::%s", FieldEnding, end))
	} else {
		parts = append(parts, fmt.Sprintf("%s::%s", FieldEnding, EndingNever))
	}

	switch r.Constraint.Kind() {
	case recur.ConstraintWeekDays:
		names := make([]string, 0, r.Constraint.Size())
		for _, wd := range r.Constraint.WeekDays() {
			names = append(names, weekdayName[wd])
		}
		parts = append(parts, fmt.Sprintf("%s::[%s]", FieldWeekDays, strings.Join(names, ",")))
	case recur.ConstraintMonthDays:
		items := make([]string, 0, r.Constraint.Size())
		for _, d := range r.Constraint.MonthDays() {
			items = append(items, strconv.Itoa(d))
		}
		parts = append(parts, fmt.Sprintf("%s::[%s]", FieldMonthDays, strings.Join(items, ",")))
	case recur.ConstraintYearDates:
		items := make([]string, 0, r.Constraint.Size())
		for _, md := range r.Constraint.YearDates() {
			items = append(items, md.String())
		}
		sort.Strings(items)
		parts = append(parts, fmt.Sprintf("%s::[%s]", FieldYearDates, strings.Join(items, ",")))
	}

	return strings.Join(parts, " ")
}

// =============================================================================
// DUE DATES
// =============================================================================

// ParseDue reads a due:: field value.
func ParseDue(fields map[string]string) (recur.CalendarDate, error) {
	raw, ok := fields[FieldDue]
	if !ok {
		return recur.CalendarDate{}, fmt.Errorf("%w: no %s:: field", recur.ErrInvalidDate, FieldDue)
	}
	return recur.ParseCalendarDate(raw)
}

// FormatDue renders a due:: field.
func FormatDue(d recur.CalendarDate) string {
	return fmt.Sprintf("%s::%s", FieldDue, d)
}
