package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	archived   INTEGER NOT NULL DEFAULT 0 CHECK(archived IN (0, 1)),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS users (
	id               TEXT PRIMARY KEY,
	display_name     TEXT NOT NULL,
	email            TEXT NOT NULL DEFAULT '',
	telegram_chat_id INTEGER NOT NULL DEFAULT 0,
	channel          TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tasks (
	id               TEXT PRIMARY KEY,
	project_id       TEXT REFERENCES projects(id) ON DELETE SET NULL,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'todo' CHECK(status IN ('todo', 'in_progress', 'done')),
	deadline         DATETIME,
	reminder_offsets TEXT,
	recur_freq       TEXT,
	recur_interval   INTEGER NOT NULL DEFAULT 0,
	recur_until      DATETIME,
	completed_at     DATETIME,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS task_assignees (
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	PRIMARY KEY (task_id, user_id)
);

CREATE TABLE IF NOT EXISTS notifications (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	task_id         TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	kind            TEXT NOT NULL CHECK(kind IN ('reminder', 'overdue', 'comment', 'mention', 'update')),
	reminder_offset INTEGER NOT NULL DEFAULT 0,
	message         TEXT NOT NULL,
	scheduled_for   DATETIME NOT NULL,
	read            INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	sent            INTEGER NOT NULL DEFAULT 0 CHECK(sent IN (0, 1)),
	sent_at         DATETIME,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- The dedup invariant: one notification per user/task/kind/offset.
-- Non-reminder kinds store offset 0, which collapses their key to
-- (user, task, kind).
CREATE UNIQUE INDEX IF NOT EXISTS ux_notifications_dedup
	ON notifications(user_id, task_id, kind, reminder_offset);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_deadline ON tasks(deadline);
CREATE INDEX IF NOT EXISTS idx_notifications_unsent ON notifications(sent, scheduled_for);
CREATE INDEX IF NOT EXISTS idx_notifications_user_read ON notifications(user_id, read);
CREATE INDEX IF NOT EXISTS idx_task_assignees_user ON task_assignees(user_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
