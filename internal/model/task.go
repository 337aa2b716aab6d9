package model

import "time"

// NoDueDate is the reserved due-date sentinel for undated backlog and
// carry-forward tasks.
var NoDueDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// Task is a concrete task instance, one-off or materialized from a template.
// At most one row may exist per (template_id, due_date); the unique index is
// the cross-call invariant the advisory generation lock is not a substitute for.
type Task struct {
	ID         uint  `gorm:"primaryKey"`
	UserID     uint  `gorm:"index"`
	TemplateID *uint `gorm:"index;uniqueIndex:idx_tasks_template_due"`

	Title      string
	Memo       string
	Category   string `gorm:"index"`
	Importance int
	URLs       []string `gorm:"serializer:json"`
	StartTime  *string
	EndTime    *string

	DueDate     time.Time `gorm:"index;uniqueIndex:idx_tasks_template_due"`
	Completed   bool      `gorm:"default:false"`
	CompletedAt *time.Time

	// CarriedForward marks a completed shopping task whose open checklist
	// items have already been moved to a new task, making reconciliation
	// exactly-once.
	CarriedForward bool `gorm:"default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasDueDate reports whether the task carries a real calendar date.
func (t *Task) HasDueDate() bool {
	return !t.DueDate.Equal(NoDueDate)
}

// Subtask is a checklist row under a task.
type Subtask struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"index"`
	TaskID    uint `gorm:"index"`
	Title     string
	Done      bool `gorm:"default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
