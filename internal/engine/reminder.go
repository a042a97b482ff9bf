package engine

import (
	"context"
	"fmt"
	"time"

	"taskping/internal/model"
	"taskping/internal/schedule"
	"taskping/internal/store"
	logx "taskping/pkg/logx"
)

// ScanReminders runs one reminder tick: for every open task with a
// deadline, every configured lead time whose trigger falls inside the
// grace window produces one notification per assignee, deduplicated
// by (user, task, reminder, offset).
//
// Malformed tasks are skipped with a log so one bad row never starves
// the rest of the batch; storage errors abort the tick, which is safe
// to re-run because inserts are idempotent.
func (e *Engine) ScanReminders(ctx context.Context, now time.Time) ([]model.Notification, error) {
	start := time.Now()

	tasks, err := e.store.GetTasks(ctx, store.TaskFilter{Open: true, WithDeadline: true})
	if err != nil {
		return nil, fmt.Errorf("reminder scan: loading tasks: %w", err)
	}

	var created []model.Notification
	skipped := 0
	for _, t := range tasks {
		if t.Deadline == nil {
			// Filter guarantees a deadline; treat a violation as the
			// malformed-row case rather than trusting it.
			e.log.Warn("reminder scan: task without deadline in deadline query", logx.String("task", t.ID))
			skipped++
			continue
		}
		if len(t.Assignees) == 0 {
			continue
		}

		for _, offset := range t.EffectiveOffsets() {
			if offset <= 0 {
				e.log.Warn("reminder scan: ignoring non-positive offset",
					logx.String("task", t.ID), logx.Int("offset", offset))
				skipped++
				continue
			}

			trigger := schedule.TriggerTime(*t.Deadline, offset)
			if !schedule.IsDue(trigger, now, e.grace) {
				continue
			}

			for _, userID := range t.Assignees {
				n := model.Notification{
					UserID:         userID,
					TaskID:         t.ID,
					Kind:           model.KindReminder,
					ReminderOffset: offset,
					Message:        fmt.Sprintf("Task %q is due in %s.", t.Title, schedule.HumanizeOffset(offset)),
					ScheduledFor:   trigger,
				}
				stored, inserted, err := e.store.CreateNotification(ctx, n)
				if err != nil {
					return created, fmt.Errorf("reminder scan: inserting notification: %w", err)
				}
				if inserted {
					created = append(created, stored)
				}
			}
		}
	}

	e.log.Info("reminder scan finished",
		logx.Int("tasks", len(tasks)),
		logx.Int("created", len(created)),
		logx.Int("skipped", skipped),
		logx.Duration("dur", time.Since(start)))
	return created, nil
}
