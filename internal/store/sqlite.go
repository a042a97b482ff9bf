package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"taskping/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// Options tune the underlying connection.
type Options struct {
	// BusyTimeout bounds how long a writer waits on a locked database
	// before failing. Zero keeps the driver default.
	BusyTimeout time.Duration
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if opts.BusyTimeout > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", opts.BusyTimeout.Milliseconds())); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// ---- Tasks ----

// taskRow mirrors the tasks table for sqlx scanning; boolean and
// composite fields are converted in toTask/fromTask.
type taskRow struct {
	ID              string     `db:"id"`
	ProjectID       *string    `db:"project_id"`
	Title           string     `db:"title"`
	Description     string     `db:"description"`
	Status          string     `db:"status"`
	Deadline        *time.Time `db:"deadline"`
	ReminderOffsets *string    `db:"reminder_offsets"`
	RecurFreq       *string    `db:"recur_freq"`
	RecurInterval   int        `db:"recur_interval"`
	RecurUntil      *time.Time `db:"recur_until"`
	CompletedAt     *time.Time `db:"completed_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func fromTask(t model.Task) (taskRow, error) {
	row := taskRow{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		CompletedAt: utcPtr(t.CompletedAt),
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
	row.Deadline = utcPtr(t.Deadline)

	if t.ReminderOffsets != nil {
		b, err := json.Marshal(t.ReminderOffsets)
		if err != nil {
			return taskRow{}, fmt.Errorf("marshaling reminder_offsets for task %s: %w", t.ID, err)
		}
		js := string(b)
		row.ReminderOffsets = &js
	}

	if t.Recurrence != nil {
		freq := string(t.Recurrence.Freq)
		row.RecurFreq = &freq
		row.RecurInterval = t.Recurrence.Interval
		row.RecurUntil = utcPtr(t.Recurrence.Until)
	}

	return row, nil
}

func (r taskRow) toTask() (model.Task, error) {
	t := model.Task{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		Deadline:    r.Deadline,
		CompletedAt: r.CompletedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}

	if r.ReminderOffsets != nil {
		// "[]" decodes to a non-nil empty slice, preserving the
		// explicit-none vs unset distinction.
		offsets := []int{}
		if err := json.Unmarshal([]byte(*r.ReminderOffsets), &offsets); err != nil {
			return model.Task{}, fmt.Errorf("unmarshaling reminder_offsets for task %s: %w", r.ID, err)
		}
		t.ReminderOffsets = offsets
	}

	if r.RecurFreq != nil {
		t.Recurrence = &model.Recurrence{
			Freq:     model.Freq(*r.RecurFreq),
			Interval: r.RecurInterval,
			Until:    r.RecurUntil,
		}
	}

	return t, nil
}

// CreateTask inserts a task and its assignee links in one transaction.
func (s *SQLiteStore) CreateTask(ctx context.Context, t model.Task) error {
	row, err := fromTask(t)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO tasks (
			id, project_id, title, description, status, deadline,
			reminder_offsets, recur_freq, recur_interval, recur_until,
			completed_at, created_at, updated_at
		) VALUES (
			:id, :project_id, :title, :description, :status, :deadline,
			:reminder_offsets, :recur_freq, :recur_interval, :recur_until,
			:completed_at, :created_at, :updated_at
		)`, row)
	if err != nil {
		return fmt.Errorf("inserting task %s: %w", t.ID, err)
	}

	if err := insertAssignees(ctx, tx, t.ID, t.Assignees); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateTask replaces a task row and its assignee set.
func (s *SQLiteStore) UpdateTask(ctx context.Context, t model.Task) error {
	row, err := fromTask(t)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, `
		UPDATE tasks SET
			project_id = :project_id, title = :title, description = :description,
			status = :status, deadline = :deadline,
			reminder_offsets = :reminder_offsets,
			recur_freq = :recur_freq, recur_interval = :recur_interval, recur_until = :recur_until,
			completed_at = :completed_at, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating task %s: %w", t.ID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM task_assignees WHERE task_id = ?", t.ID); err != nil {
		return fmt.Errorf("clearing assignees for task %s: %w", t.ID, err)
	}
	if err := insertAssignees(ctx, tx, t.ID, t.Assignees); err != nil {
		return err
	}

	return tx.Commit()
}

func insertAssignees(ctx context.Context, tx *sqlx.Tx, taskID string, userIDs []string) error {
	for _, uid := range userIDs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO task_assignees (task_id, user_id) VALUES (?, ?)", taskID, uid)
		if err != nil {
			return fmt.Errorf("assigning task %s to user %s: %w", taskID, uid, err)
		}
	}
	return nil
}

// GetTaskByID retrieves a single task with its assignees.
func (s *SQLiteStore) GetTaskByID(ctx context.Context, id string) (*model.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM tasks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}

	t, err := row.toTask()
	if err != nil {
		return nil, err
	}
	if t.Assignees, err = s.assigneesFor(ctx, id); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTasks retrieves tasks matching the filter, assignees included.
func (s *SQLiteStore) GetTasks(ctx context.Context, f TaskFilter) ([]model.Task, error) {
	var conditions []string
	var args []interface{}

	if f.Open {
		conditions = append(conditions, "status != ?")
		args = append(args, model.StatusDone)
	}
	if f.WithDeadline {
		conditions = append(conditions, "deadline IS NOT NULL")
	}
	if f.DeadlineAtOrBefore != nil {
		conditions = append(conditions, "deadline <= ?")
		args = append(args, f.DeadlineAtOrBefore.UTC())
	}
	if f.ProjectID != nil {
		conditions = append(conditions, "project_id = ?")
		args = append(args, *f.ProjectID)
	}

	query := "SELECT * FROM tasks"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY deadline, created_at"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}

	tasks := make([]model.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTask()
		if err != nil {
			return nil, err
		}
		if t.Assignees, err = s.assigneesFor(ctx, t.ID); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *SQLiteStore) assigneesFor(ctx context.Context, taskID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT user_id FROM task_assignees WHERE task_id = ? ORDER BY user_id", taskID)
	if err != nil {
		return nil, fmt.Errorf("loading assignees for task %s: %w", taskID, err)
	}
	return ids, nil
}

// SetTaskStatus updates only the status transition fields.
func (s *SQLiteStore) SetTaskStatus(ctx context.Context, id, status string, completedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?",
		status, utcPtr(completedAt), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("setting status for task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("setting status for task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ---- Users ----

func (s *SQLiteStore) CreateUser(ctx context.Context, u model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, telegram_chat_id, channel, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.DisplayName, u.Email, u.TelegramChatID, u.Channel, u.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating user %s: %w", u.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return &u, nil
}

// ---- Projects ----

func (s *SQLiteStore) CreateProject(ctx context.Context, p model.Project) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, archived, created_at)
		VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, boolToInt(p.Archived), p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating project %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetProjectByID(ctx context.Context, id string) (*model.Project, error) {
	var row struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		Archived  int       `db:"archived"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row, "SELECT * FROM projects WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project %s: %w", id, err)
	}
	return &model.Project{
		ID: row.ID, Name: row.Name, Archived: row.Archived != 0, CreatedAt: row.CreatedAt,
	}, nil
}

// ---- Notifications ----

// notifRow mirrors the notifications table; read/sent are stored as
// 0/1 integers.
type notifRow struct {
	ID             string     `db:"id"`
	UserID         string     `db:"user_id"`
	TaskID         string     `db:"task_id"`
	Kind           string     `db:"kind"`
	ReminderOffset int        `db:"reminder_offset"`
	Message        string     `db:"message"`
	ScheduledFor   time.Time  `db:"scheduled_for"`
	Read           int        `db:"read"`
	Sent           int        `db:"sent"`
	SentAt         *time.Time `db:"sent_at"`
	CreatedAt      time.Time  `db:"created_at"`
}

func (r notifRow) toNotification() model.Notification {
	return model.Notification{
		ID:             r.ID,
		UserID:         r.UserID,
		TaskID:         r.TaskID,
		Kind:           model.Kind(r.Kind),
		ReminderOffset: r.ReminderOffset,
		Message:        r.Message,
		ScheduledFor:   r.ScheduledFor,
		Read:           r.Read != 0,
		Sent:           r.Sent != 0,
		SentAt:         r.SentAt,
		CreatedAt:      r.CreatedAt,
	}
}

// CreateNotification inserts a notification unless one already exists
// for its dedup key. A conflict is a silent no-op (inserted=false) so
// racing ticks never duplicate and never fail. The returned record is
// the row as persisted, id and creation timestamp included.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, bool, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.ScheduledFor = n.ScheduledFor.UTC()
	n.CreatedAt = n.CreatedAt.UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, user_id, task_id, kind, reminder_offset,
			message, scheduled_for, read, sent, sent_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, task_id, kind, reminder_offset) DO NOTHING`,
		n.ID, n.UserID, n.TaskID, string(n.Kind), n.ReminderOffset,
		n.Message, n.ScheduledFor, boolToInt(n.Read), boolToInt(n.Sent),
		utcPtr(n.SentAt), n.CreatedAt)
	if err != nil {
		return model.Notification{}, false, fmt.Errorf("creating notification: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return model.Notification{}, false, fmt.Errorf("creating notification: %w", err)
	}
	if inserted == 0 {
		return model.Notification{}, false, nil
	}
	return n, true, nil
}

// NotificationExists checks the dedup key.
func (s *SQLiteStore) NotificationExists(ctx context.Context, userID, taskID string, kind model.Kind, reminderOffset int) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = ? AND task_id = ? AND kind = ? AND reminder_offset = ?`,
		userID, taskID, string(kind), reminderOffset)
	if err != nil {
		return false, fmt.Errorf("checking notification existence: %w", err)
	}
	return count > 0, nil
}

// GetPendingNotifications selects undelivered, due notifications whose
// task is still open, oldest first. This selection being a pure
// function of persisted state is what makes dispatch retries free: a
// failed send simply shows up again on the next sweep.
func (s *SQLiteStore) GetPendingNotifications(ctx context.Context, f PendingFilter) ([]model.Notification, error) {
	query := `
		SELECT n.* FROM notifications n
		JOIN tasks t ON t.id = n.task_id
		WHERE n.sent = 0 AND n.scheduled_for <= ? AND t.status != ?`
	args := []interface{}{f.DueBy.UTC(), model.StatusDone}

	if f.SkipRead {
		query += " AND n.read = 0"
	}
	query += " ORDER BY n.scheduled_for"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	var rows []notifRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying pending notifications: %w", err)
	}

	out := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toNotification())
	}
	return out, nil
}

// MarkNotificationSent records a successful delivery.
func (s *SQLiteStore) MarkNotificationSent(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET sent = 1, sent_at = ? WHERE id = ?", at.UTC(), id)
	if err != nil {
		return fmt.Errorf("marking notification %s sent: %w", id, err)
	}
	return nil
}

// GetUnreadNotifications retrieves a user's unread notifications,
// newest scheduled_for first.
func (s *SQLiteStore) GetUnreadNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	var rows []notifRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM notifications
		WHERE user_id = ? AND read = 0
		ORDER BY scheduled_for DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying unread notifications: %w", err)
	}

	out := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toNotification())
	}
	return out, nil
}

// MarkNotificationsRead bulk-flips read=true. Already-read and missing
// ids are no-ops.
func (s *SQLiteStore) MarkNotificationsRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("UPDATE notifications SET read = 1 WHERE id IN (?)", ids)
	if err != nil {
		return fmt.Errorf("building mark-read query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("marking notifications read: %w", err)
	}
	return nil
}

// ---- helpers ----

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
