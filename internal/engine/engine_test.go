package engine_test

import (
	"context"
	"testing"
	"time"

	"taskping/internal/engine"
	"taskping/internal/model"
	"taskping/internal/store"
	"taskping/internal/store/testutil"
	logx "taskping/pkg/logx"
)

func newEngine(t *testing.T) (*engine.Engine, *store.SQLiteStore) {
	t.Helper()
	s := testutil.NewTestStore(t)
	return engine.New(engine.Config{}, s, logx.Nop()), s
}

func TestScanRemindersCreatesAndDedups(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	alice := testutil.SeedUser(t, s, "alice")
	bob := testutil.SeedUser(t, s, "bob")

	deadline := now.Add(24 * time.Hour)
	testutil.SeedTask(t, s, "ship release", func(task *model.Task) {
		task.Deadline = &deadline
		task.Assignees = []string{alice.ID, bob.ID}
	})

	// With default offsets only the 1-day lead time triggers at this
	// instant; the 7-day and 3-day triggers are long past the grace
	// window and must not fire.
	created, err := e.ScanReminders(ctx, now)
	if err != nil {
		t.Fatalf("ScanReminders: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d notifications, want 2 (one per assignee)", len(created))
	}
	for _, n := range created {
		if n.ID == "" {
			t.Error("created notification has no persisted id")
		}
		if n.Kind != model.KindReminder {
			t.Errorf("kind = %q, want %q", n.Kind, model.KindReminder)
		}
		if n.ReminderOffset != 1440 {
			t.Errorf("offset = %d, want 1440", n.ReminderOffset)
		}
		if !n.ScheduledFor.Equal(deadline.Add(-24 * time.Hour)) {
			t.Errorf("scheduled_for = %v, want trigger time %v", n.ScheduledFor, deadline.Add(-24*time.Hour))
		}
		if want := `Task "ship release" is due in 1 day.`; n.Message != want {
			t.Errorf("message = %q, want %q", n.Message, want)
		}
	}

	// Re-running the same tick must be a pure no-op.
	again, err := e.ScanReminders(ctx, now)
	if err != nil {
		t.Fatalf("second ScanReminders: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second scan created %d notifications, want 0", len(again))
	}

	// A later tick inside the same offset's grace window is also a no-op.
	later, err := e.ScanReminders(ctx, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("later ScanReminders: %v", err)
	}
	if len(later) != 0 {
		t.Fatalf("later scan created %d notifications, want 0", len(later))
	}
}

func TestScanRemindersOffsetRules(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	alice := testutil.SeedUser(t, s, "alice")

	deadline := now.Add(time.Hour)

	testutil.SeedTask(t, s, "explicit none", func(task *model.Task) {
		task.Deadline = &deadline
		task.ReminderOffsets = []int{}
		task.Assignees = []string{alice.ID}
	})
	testutil.SeedTask(t, s, "custom hour", func(task *model.Task) {
		task.Deadline = &deadline
		task.ReminderOffsets = []int{60}
		task.Assignees = []string{alice.ID}
	})
	testutil.SeedTask(t, s, "no deadline", func(task *model.Task) {
		task.Assignees = []string{alice.ID}
	})
	testutil.SeedTask(t, s, "already done", func(task *model.Task) {
		task.Deadline = &deadline
		task.ReminderOffsets = []int{60}
		task.Assignees = []string{alice.ID}
		task.Status = model.StatusDone
	})

	created, err := e.ScanReminders(ctx, now)
	if err != nil {
		t.Fatalf("ScanReminders: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d notifications, want 1", len(created))
	}
	if got := created[0].Message; got != `Task "custom hour" is due in 1 hour.` {
		t.Errorf("message = %q", got)
	}
}

func TestScanRemindersSkipsUnassigned(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	deadline := now.Add(time.Hour)
	testutil.SeedTask(t, s, "nobody's job", func(task *model.Task) {
		task.Deadline = &deadline
		task.ReminderOffsets = []int{60}
	})

	created, err := e.ScanReminders(context.Background(), now)
	if err != nil {
		t.Fatalf("ScanReminders: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("created %d notifications for unassigned task, want 0", len(created))
	}
}

func TestScanOverdueOncePerUserTask(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	alice := testutil.SeedUser(t, s, "alice")

	deadline := now.Add(-2 * time.Hour)
	task := testutil.SeedTask(t, s, "late report", func(task *model.Task) {
		task.Deadline = &deadline
		task.ReminderOffsets = []int{}
		task.Assignees = []string{alice.ID}
	})

	created, err := e.ScanOverdue(ctx, now)
	if err != nil {
		t.Fatalf("ScanOverdue: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d notifications, want 1", len(created))
	}
	n := created[0]
	if n.Kind != model.KindOverdue || n.ReminderOffset != 0 {
		t.Errorf("got kind=%q offset=%d, want overdue/0", n.Kind, n.ReminderOffset)
	}
	if !n.ScheduledFor.Equal(deadline) {
		t.Errorf("scheduled_for = %v, want deadline %v", n.ScheduledFor, deadline)
	}
	if want := `Task "late report" is now overdue!`; n.Message != want {
		t.Errorf("message = %q, want %q", n.Message, want)
	}

	// The task stays overdue across many sweeps; the notification is
	// never reissued.
	for _, at := range []time.Time{now.Add(time.Hour), now.Add(24 * time.Hour)} {
		again, err := e.ScanOverdue(ctx, at)
		if err != nil {
			t.Fatalf("ScanOverdue at %v: %v", at, err)
		}
		if len(again) != 0 {
			t.Fatalf("sweep at %v created %d notifications, want 0", at, len(again))
		}
	}

	// Completion stops future matching but leaves the existing row.
	if err := s.SetTaskStatus(ctx, task.ID, model.StatusDone, &now); err != nil {
		t.Fatalf("SetTaskStatus: %v", err)
	}
	exists, err := s.NotificationExists(ctx, alice.ID, task.ID, model.KindOverdue, 0)
	if err != nil {
		t.Fatalf("NotificationExists: %v", err)
	}
	if !exists {
		t.Error("overdue notification should survive task completion")
	}
}

func TestScanOverdueIgnoresFutureDeadlines(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	alice := testutil.SeedUser(t, s, "alice")

	future := now.Add(time.Minute)
	testutil.SeedTask(t, s, "not yet", func(task *model.Task) {
		task.Deadline = &future
		task.Assignees = []string{alice.ID}
	})

	created, err := e.ScanOverdue(context.Background(), now)
	if err != nil {
		t.Fatalf("ScanOverdue: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("created %d notifications for future deadline, want 0", len(created))
	}
}

func TestCompleteSpawnsNextOccurrence(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 31, 17, 0, 0, 0, time.UTC)
	alice := testutil.SeedUser(t, s, "alice")

	deadline := time.Date(2026, 1, 31, 17, 0, 0, 0, time.UTC)
	task := testutil.SeedTask(t, s, "monthly invoice", func(task *model.Task) {
		task.Description = "send the invoice"
		task.Deadline = &deadline
		task.ReminderOffsets = []int{60}
		task.Assignees = []string{alice.ID}
		task.Recurrence = &model.Recurrence{Freq: model.FreqMonthly, Interval: 1}
	})

	succ, err := e.Complete(ctx, task.ID, now)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if succ == nil {
		t.Fatal("expected a successor task")
	}

	// Original is done with a completion timestamp.
	orig, err := s.GetTaskByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTaskByID: %v", err)
	}
	if orig.Status != model.StatusDone || orig.CompletedAt == nil {
		t.Errorf("original not completed: status=%q completed_at=%v", orig.Status, orig.CompletedAt)
	}

	// Successor carries everything forward, clamped into February.
	got, err := s.GetTaskByID(ctx, succ.ID)
	if err != nil {
		t.Fatalf("loading successor: %v", err)
	}
	if got.ID == task.ID {
		t.Error("successor reused the original id")
	}
	wantDeadline := time.Date(2026, 2, 28, 17, 0, 0, 0, time.UTC)
	if got.Deadline == nil || !got.Deadline.Equal(wantDeadline) {
		t.Errorf("successor deadline = %v, want %v", got.Deadline, wantDeadline)
	}
	if got.Status != model.StatusTodo || got.CompletedAt != nil {
		t.Errorf("successor not fresh: status=%q completed_at=%v", got.Status, got.CompletedAt)
	}
	if got.Title != task.Title || got.Description != task.Description {
		t.Errorf("successor text differs: %q / %q", got.Title, got.Description)
	}
	if len(got.Assignees) != 1 || got.Assignees[0] != alice.ID {
		t.Errorf("successor assignees = %v", got.Assignees)
	}
	if len(got.ReminderOffsets) != 1 || got.ReminderOffsets[0] != 60 {
		t.Errorf("successor offsets = %v", got.ReminderOffsets)
	}
	if got.Recurrence == nil || got.Recurrence.Freq != model.FreqMonthly || got.Recurrence.Interval != 1 {
		t.Errorf("successor recurrence = %+v", got.Recurrence)
	}
}

func TestCompleteTwiceSpawnsOnce(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 30, 17, 0, 0, 0, time.UTC)
	deadline := now

	task := testutil.SeedTask(t, s, "monthly report", func(task *model.Task) {
		task.Deadline = &deadline
		task.Recurrence = &model.Recurrence{Freq: model.FreqMonthly, Interval: 1}
	})

	succ, err := e.Complete(ctx, task.ID, now)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if succ == nil {
		t.Fatal("expected a successor")
	}

	// A retried or double-submitted completion of the same task must
	// not advance the chain again.
	again, err := e.Complete(ctx, task.ID, now)
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if again != nil {
		t.Fatalf("re-completion spawned %s", again.ID)
	}

	open, err := s.GetTasks(ctx, store.TaskFilter{Open: true})
	if err != nil {
		t.Fatalf("GetTasks: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open successors = %d, want 1", len(open))
	}
	if open[0].ID != succ.ID {
		t.Fatalf("open task %s is not the successor %s", open[0].ID, succ.ID)
	}
}

func TestCompleteRecurrenceTermination(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	deadline := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	until := time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC)
	task := testutil.SeedTask(t, s, "daily standup notes", func(task *model.Task) {
		task.Deadline = &deadline
		task.Recurrence = &model.Recurrence{Freq: model.FreqDaily, Interval: 7, Until: &until}
	})

	// Next occurrence (Jun 8) lands past the end date: chain ends.
	succ, err := e.Complete(ctx, task.ID, now)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if succ != nil {
		t.Fatalf("expected no successor, got %s with deadline %v", succ.ID, succ.Deadline)
	}

	tasks, err := s.GetTasks(ctx, store.TaskFilter{Open: true})
	if err != nil {
		t.Fatalf("GetTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("found %d open tasks after terminated chain, want 0", len(tasks))
	}
}

func TestCompleteWithoutRecurrence(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	task := testutil.SeedTask(t, s, "one-off", nil)
	succ, err := e.Complete(ctx, task.ID, now)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if succ != nil {
		t.Fatal("plain task must not spawn a successor")
	}
}

func TestCompleteInvalidRecurrenceSkipsSpawn(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()
	deadline := now.Add(time.Hour)

	task := testutil.SeedTask(t, s, "broken rule", func(task *model.Task) {
		task.Deadline = &deadline
		task.Recurrence = &model.Recurrence{Freq: "fortnightly", Interval: 1}
	})

	succ, err := e.Complete(ctx, task.ID, now)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if succ != nil {
		t.Fatal("invalid rule must not spawn")
	}
	got, err := s.GetTaskByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTaskByID: %v", err)
	}
	if got.Status != model.StatusDone {
		t.Errorf("task status = %q, want done despite bad rule", got.Status)
	}
}

func TestInbox(t *testing.T) {
	t.Parallel()

	e, s := newEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	alice := testutil.SeedUser(t, s, "alice")

	deadline := now.Add(-time.Hour)
	testutil.SeedTask(t, s, "late", func(task *model.Task) {
		task.Deadline = &deadline
		task.ReminderOffsets = []int{}
		task.Assignees = []string{alice.ID}
	})
	if _, err := e.ScanOverdue(ctx, now); err != nil {
		t.Fatalf("ScanOverdue: %v", err)
	}

	unread, err := e.ListUnread(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListUnread: %v", err)
	}
	if len(unread) != 1 {
		t.Fatalf("unread = %d, want 1", len(unread))
	}

	if err := e.MarkRead(ctx, []string{unread[0].ID}); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	unread, err = e.ListUnread(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListUnread after mark: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("unread after mark = %d, want 0", len(unread))
	}

	// Empty and repeated marks are no-ops.
	if err := e.MarkRead(ctx, nil); err != nil {
		t.Fatalf("MarkRead(nil): %v", err)
	}
}
