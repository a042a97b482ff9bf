package store

import (
	"context"
	"errors"
	"time"

	"taskping/internal/model"
)

// ErrNotFound is returned for lookups of missing rows.
var ErrNotFound = errors.New("store: not found")

// TaskFilter controls task queries. Zero value matches everything.
type TaskFilter struct {
	// Open keeps only tasks whose status is not done.
	Open bool

	// WithDeadline keeps only tasks that carry a deadline.
	WithDeadline bool

	// DeadlineAtOrBefore keeps tasks whose deadline has passed at the
	// given instant (used by the overdue sweep).
	DeadlineAtOrBefore *time.Time

	ProjectID *string
	Limit     int
}

// PendingFilter controls the dispatcher's selection of undelivered
// notifications.
type PendingFilter struct {
	// DueBy selects notifications with scheduled_for at or before
	// this instant.
	DueBy time.Time

	// SkipRead excludes notifications the user has already read.
	SkipRead bool

	Limit int
}

// Store is the persistence contract the engine runs against.
//
// CreateNotification is the dedup point of the whole subsystem: the
// implementation must enforce uniqueness of
// (user_id, task_id, kind, reminder_offset) at the storage level and
// report a conflicting insert as inserted=false rather than an error,
// so concurrent ticks can race the check-then-insert sequence without
// ever producing duplicates. On success it returns the row as
// persisted, with generated id and creation timestamp filled in.
type Store interface {
	// Tasks
	CreateTask(ctx context.Context, t model.Task) error
	UpdateTask(ctx context.Context, t model.Task) error
	GetTaskByID(ctx context.Context, id string) (*model.Task, error)
	GetTasks(ctx context.Context, f TaskFilter) ([]model.Task, error)
	SetTaskStatus(ctx context.Context, id, status string, completedAt *time.Time) error

	// Users
	CreateUser(ctx context.Context, u model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)

	// Projects
	CreateProject(ctx context.Context, p model.Project) error
	GetProjectByID(ctx context.Context, id string) (*model.Project, error)

	// Notifications
	CreateNotification(ctx context.Context, n model.Notification) (model.Notification, bool, error)
	NotificationExists(ctx context.Context, userID, taskID string, kind model.Kind, reminderOffset int) (bool, error)
	GetPendingNotifications(ctx context.Context, f PendingFilter) ([]model.Notification, error)
	MarkNotificationSent(ctx context.Context, id string, at time.Time) error
	GetUnreadNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	MarkNotificationsRead(ctx context.Context, ids []string) error

	Close() error
}
