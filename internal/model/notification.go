package model

import "time"

// Kind classifies a notification.
type Kind string

const (
	KindReminder Kind = "reminder"
	KindOverdue  Kind = "overdue"
	KindComment  Kind = "comment"
	KindMention  Kind = "mention"
	KindUpdate   Kind = "update"
)

// Notification records one thing told to one user about one task.
//
// At most one row exists per (UserID, TaskID, Kind, ReminderOffset);
// the offset participates in the key only for reminders and is zero
// for every other kind, which is what makes the overdue kind a
// once-per-task-per-user record.
type Notification struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	TaskID string `json:"task_id" db:"task_id"`
	Kind   Kind   `json:"kind" db:"kind"`

	// ReminderOffset identifies which configured lead time (minutes)
	// a reminder corresponds to. Zero for non-reminder kinds.
	ReminderOffset int `json:"reminder_offset,omitempty" db:"reminder_offset"`

	// Message is the rendered text, immutable after creation.
	Message string `json:"message" db:"message"`

	// ScheduledFor is the moment the notification belongs to: the
	// reminder trigger time, the deadline for overdue, or creation
	// time for immediate kinds.
	ScheduledFor time.Time `json:"scheduled_for" db:"scheduled_for"`

	Read   bool       `json:"read" db:"read"`
	Sent   bool       `json:"sent" db:"sent"`
	SentAt *time.Time `json:"sent_at,omitempty" db:"sent_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
