package engine

import (
	"context"
	"fmt"
	"time"

	"taskping/internal/model"
	"taskping/internal/store"
	logx "taskping/pkg/logx"
)

// ScanOverdue flags open tasks whose deadline has passed. The dedup
// key for overdue carries no offset, so each (user, task) pair is
// flagged exactly once: re-running the sweep over an already-flagged
// task is a no-op, and the single notification stays visible until
// the user acts on it. Completed tasks simply stop matching the
// query; existing overdue rows are left alone.
func (e *Engine) ScanOverdue(ctx context.Context, now time.Time) ([]model.Notification, error) {
	start := time.Now()

	tasks, err := e.store.GetTasks(ctx, store.TaskFilter{
		Open:               true,
		WithDeadline:       true,
		DeadlineAtOrBefore: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("overdue scan: loading tasks: %w", err)
	}

	var created []model.Notification
	for _, t := range tasks {
		if t.Deadline == nil {
			e.log.Warn("overdue scan: task without deadline in deadline query", logx.String("task", t.ID))
			continue
		}

		for _, userID := range t.Assignees {
			n := model.Notification{
				UserID:       userID,
				TaskID:       t.ID,
				Kind:         model.KindOverdue,
				Message:      fmt.Sprintf("Task %q is now overdue!", t.Title),
				ScheduledFor: *t.Deadline,
			}
			stored, inserted, err := e.store.CreateNotification(ctx, n)
			if err != nil {
				return created, fmt.Errorf("overdue scan: inserting notification: %w", err)
			}
			if inserted {
				created = append(created, stored)
			}
		}
	}

	e.log.Info("overdue scan finished",
		logx.Int("tasks", len(tasks)),
		logx.Int("created", len(created)),
		logx.Duration("dur", time.Since(start)))
	return created, nil
}
