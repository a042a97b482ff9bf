package model

import (
	"fmt"
	"time"
)

// Task status values.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// DefaultReminderOffsets are the lead times (minutes before deadline)
// applied when a task carries a deadline but no explicit offsets:
// 7 days, 3 days, 1 day.
var DefaultReminderOffsets = []int{10080, 4320, 1440}

// Task is a unit of work tracked by the engine.
type Task struct {
	ID          string  `json:"id" db:"id"`
	ProjectID   *string `json:"project_id,omitempty" db:"project_id"`
	Title       string  `json:"title" db:"title"`
	Description string  `json:"description" db:"description"`
	Status      string  `json:"status" db:"status"`

	// Deadline is optional; a task without one is never scanned for
	// reminders or overdue state.
	Deadline *time.Time `json:"deadline,omitempty" db:"deadline"`

	// ReminderOffsets are lead times in minutes before Deadline,
	// descending by convention. nil means "unset" (system defaults
	// apply); a non-nil empty slice means "no reminders wanted".
	ReminderOffsets []int `json:"reminder_offsets,omitempty" db:"-"`

	// Assignees holds the user IDs reminder and overdue notifications
	// fan out to.
	Assignees []string `json:"assignees,omitempty" db:"-"`

	// Recurrence, when set, regenerates the task on completion.
	// Only valid together with Deadline.
	Recurrence *Recurrence `json:"recurrence,omitempty" db:"-"`

	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Open reports whether the task still counts for reminder and overdue
// scans.
func (t *Task) Open() bool {
	return t.Status != StatusDone
}

// EffectiveOffsets resolves the reminder offsets the scanner should
// use: explicit offsets when configured (including "none"), system
// defaults when unset, nothing when the task has no deadline.
func (t *Task) EffectiveOffsets() []int {
	if t.Deadline == nil {
		return nil
	}
	if t.ReminderOffsets != nil {
		return t.ReminderOffsets
	}
	return DefaultReminderOffsets
}

// Freq is a recurrence frequency.
type Freq string

const (
	FreqDaily   Freq = "daily"
	FreqWeekly  Freq = "weekly"
	FreqMonthly Freq = "monthly"
)

// Recurrence describes how a completed task regenerates its successor.
// Until is the termination bound: a nil Until never ends, so the
// invalid "ends on a date, but no date" combination cannot be
// represented.
type Recurrence struct {
	Freq     Freq       `json:"freq"`
	Interval int        `json:"interval"`
	Until    *time.Time `json:"until,omitempty"`
}

// Validate rejects rules the engine cannot schedule.
func (r *Recurrence) Validate() error {
	switch r.Freq {
	case FreqDaily, FreqWeekly, FreqMonthly:
	default:
		return fmt.Errorf("unknown recurrence frequency %q", r.Freq)
	}
	if r.Interval <= 0 {
		return fmt.Errorf("recurrence interval must be positive, got %d", r.Interval)
	}
	return nil
}
