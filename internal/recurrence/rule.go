// Package recurrence holds the pure calendar logic behind recurring templates:
// deciding whether a rule fires on a date, and how far back and forward
// generated instances should exist for each pattern kind.
package recurrence

import "time"

// Kind classifies a recurrence rule.
type Kind string

const (
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
	Yearly  Kind = "yearly"
)

// Kinds lists every pattern kind in generation order.
func Kinds() []Kind {
	return []Kind{Daily, Weekly, Monthly, Yearly}
}

// Valid reports whether k is a known pattern kind.
func (k Kind) Valid() bool {
	switch k {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// LastDayOfMonth is the day-of-month sentinel meaning "the final calendar day,
// whatever that is for the month in question".
const LastDayOfMonth = -1

// WeekdaySet is a bitmask over ISO weekdays, Monday=1 through Sunday=7.
type WeekdaySet uint8

// NewWeekdaySet builds a set from ISO weekday numbers; out-of-range values are
// ignored.
func NewWeekdaySet(days ...int) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		if d >= 1 && d <= 7 {
			s |= 1 << uint(d)
		}
	}
	return s
}

// Contains reports whether the ISO weekday d is in the set.
func (s WeekdaySet) Contains(d int) bool {
	if d < 1 || d > 7 {
		return false
	}
	return s&(1<<uint(d)) != 0
}

// Days returns the member weekdays in ascending ISO order.
func (s WeekdaySet) Days() []int {
	var days []int
	for d := 1; d <= 7; d++ {
		if s.Contains(d) {
			days = append(days, d)
		}
	}
	return days
}

// Rule is a recurrence rule. Only the parameters relevant to Kind are
// consulted; the rest may hold anything.
type Rule struct {
	Kind       Kind
	Weekdays   WeekdaySet // weekly
	DayOfMonth int        // monthly: 1..31 or LastDayOfMonth
	Month      time.Month // yearly
	Day        int        // yearly
}

// OccursOn reports whether the rule fires on the given calendar date.
func (r Rule) OccursOn(date time.Time) bool {
	switch r.Kind {
	case Daily:
		return true
	case Weekly:
		return r.Weekdays.Contains(ISOWeekday(date))
	case Monthly:
		if r.DayOfMonth == LastDayOfMonth {
			return date.Day() == daysInMonth(date.Month(), date.Year())
		}
		// Months without the requested day fire on their final day instead,
		// so a day-31 rule still runs once in February.
		day := r.DayOfMonth
		if last := daysInMonth(date.Month(), date.Year()); day > last {
			day = last
		}
		return date.Day() == day
	case Yearly:
		return date.Month() == r.Month && date.Day() == r.Day
	}
	return false
}

// ISOWeekday returns the ISO-8601 weekday of t: Monday=1 .. Sunday=7.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// DateOf truncates t to a bare calendar date at midnight UTC. All due dates
// and watermarks are normalized through this before comparison.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysInMonth(month time.Month, year int) int {
	// Move to next month, roll back a day.
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, 1, -1).Day()
}
