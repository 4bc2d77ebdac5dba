package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create threads and messages",
		SQL: `
			CREATE TABLE threads (
				id          TEXT PRIMARY KEY,
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE messages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				thread_id   TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
				role        TEXT NOT NULL,
				message     TEXT NOT NULL,
				timestamp   TEXT NOT NULL,
				metadata    TEXT,
				citations   TEXT,
				content     TEXT
			);

			CREATE INDEX idx_messages_thread ON messages (thread_id, id);
		`,
	},
	{
		Version: 2,
		Name:    "create pipeline instances and steps",
		SQL: `
			CREATE TABLE pipeline_instances (
				id          TEXT PRIMARY KEY,
				status      TEXT NOT NULL,
				input       TEXT NOT NULL,
				error       TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);

			CREATE INDEX idx_pipeline_status ON pipeline_instances (status);

			CREATE TABLE pipeline_steps (
				instance_id   TEXT NOT NULL REFERENCES pipeline_instances(id) ON DELETE CASCADE,
				name          TEXT NOT NULL,
				status        TEXT NOT NULL,
				outcome       INTEGER NOT NULL DEFAULT 0,
				error         TEXT NOT NULL DEFAULT '',
				completed_at  TEXT NOT NULL,
				PRIMARY KEY (instance_id, name)
			);
		`,
	},
}
