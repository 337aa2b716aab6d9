package model

import (
	"time"

	"task-planner/internal/recurrence"
)

// CategoryShopping marks tasks and templates carrying a checklist whose
// unfinished items are carried forward after completion.
const CategoryShopping = "shopping"

// RecurringTemplate is a durable recurrence rule from which dated task
// instances are materialized. Pattern parameters irrelevant to Kind are
// ignored by the evaluator.
type RecurringTemplate struct {
	ID     uint `gorm:"primaryKey"`
	UserID uint `gorm:"index"`

	Kind        string `gorm:"index"` // daily/weekly/monthly/yearly
	Weekdays    int    // ISO weekday bitmask, weekly only
	DayOfMonth  int    // 1..31 or recurrence.LastDayOfMonth, monthly only
	MonthOfYear int    // yearly only
	DayOfYear   int    // yearly only

	// Payload stamped onto generated instances.
	Title      string
	Memo       string
	Category   string
	Importance int      // 1..5
	URLs       []string `gorm:"serializer:json"`
	StartTime  *string  // HH:MM
	EndTime    *string  // HH:MM
	Checklist  []string `gorm:"serializer:json"` // shopping sub-items

	Active          bool `gorm:"default:true"`
	LastActivatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Rule converts the persisted pattern columns into the evaluator's value type.
func (t *RecurringTemplate) Rule() recurrence.Rule {
	return recurrence.Rule{
		Kind:       recurrence.Kind(t.Kind),
		Weekdays:   recurrence.WeekdaySet(t.Weekdays),
		DayOfMonth: t.DayOfMonth,
		Month:      time.Month(t.MonthOfYear),
		Day:        t.DayOfYear,
	}
}

// EarliestInstanceDate is the first date the generator may materialize for
// this template: never before creation, and never before the most recent
// re-activation, so a dormant period is not backfilled.
func (t *RecurringTemplate) EarliestInstanceDate() time.Time {
	earliest := recurrence.DateOf(t.CreatedAt)
	if t.LastActivatedAt != nil {
		if d := recurrence.DateOf(*t.LastActivatedAt); d.After(earliest) {
			earliest = d
		}
	}
	return earliest
}
