package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskping/internal/model"
	"taskping/internal/schedule"
	logx "taskping/pkg/logx"
)

// Complete marks a task done and runs the completion hook, returning
// the spawned successor if any. Completing an already-done task is a
// no-op: the hook fires once per lifecycle, so a retried or
// double-submitted completion never spawns a second successor.
func (e *Engine) Complete(ctx context.Context, taskID string, now time.Time) (*model.Task, error) {
	t, err := e.store.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("completing task: %w", err)
	}
	if t.Status == model.StatusDone {
		return nil, nil
	}

	if err := e.store.SetTaskStatus(ctx, taskID, model.StatusDone, &now); err != nil {
		return nil, fmt.Errorf("completing task: %w", err)
	}

	return e.OnTaskCompleted(ctx, t, now)
}

// OnTaskCompleted is the status-transition hook: when the finished
// task carries a recurrence rule, it spawns the next occurrence. The
// successor is a fresh task: same title, description, assignees,
// project, offsets, and rule, new id, deadline advanced by the rule,
// status reset to todo. When the next deadline falls past the rule's
// end date the chain terminates and no successor is created.
//
// A task with a rule but no deadline cannot be advanced; the rule is
// logged and ignored.
func (e *Engine) OnTaskCompleted(ctx context.Context, t *model.Task, now time.Time) (*model.Task, error) {
	if t.Recurrence == nil {
		return nil, nil
	}
	if t.Deadline == nil {
		e.log.Warn("recurrence rule on task without deadline, not spawning", logx.String("task", t.ID))
		return nil, nil
	}
	if err := t.Recurrence.Validate(); err != nil {
		e.log.Warn("invalid recurrence rule, not spawning",
			logx.String("task", t.ID), logx.Err(err))
		return nil, nil
	}

	next := schedule.NextOccurrence(*t.Deadline, *t.Recurrence)
	if !schedule.ShouldSpawn(next, *t.Recurrence) {
		e.log.Info("recurrence chain finished", logx.String("task", t.ID))
		return nil, nil
	}

	succ := model.Task{
		ID:              uuid.NewString(),
		ProjectID:       t.ProjectID,
		Title:           t.Title,
		Description:     t.Description,
		Status:          model.StatusTodo,
		Deadline:        &next,
		ReminderOffsets: t.ReminderOffsets,
		Assignees:       t.Assignees,
		Recurrence:      t.Recurrence,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.CreateTask(ctx, succ); err != nil {
		return nil, fmt.Errorf("spawning next occurrence of %s: %w", t.ID, err)
	}

	e.log.Info("spawned next occurrence",
		logx.String("task", t.ID),
		logx.String("next", succ.ID),
		logx.Time("deadline", next))
	return &succ, nil
}
