// Package store provides SQLite-backed persistence for protoctl: projects,
// protocol runs, step runs, events, policy packs, engine-execution records
// (CodexRun), and clarifications — with a strict schema and forward-only
// migration discipline.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for protoctl state.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	git_url TEXT NOT NULL,
	local_path TEXT NOT NULL DEFAULT '',
	base_branch TEXT NOT NULL DEFAULT 'main',
	ci_provider TEXT NOT NULL DEFAULT '',
	secrets_enc TEXT NOT NULL DEFAULT '',
	default_models TEXT NOT NULL DEFAULT '[]',
	policy_pack_key TEXT NOT NULL DEFAULT '',
	policy_pack_version TEXT NOT NULL DEFAULT '',
	policy_overrides TEXT NOT NULL DEFAULT '{}',
	policy_repo_local_enabled BOOLEAN NOT NULL DEFAULT 0,
	policy_effective_hash TEXT NOT NULL DEFAULT '',
	policy_enforcement_mode TEXT NOT NULL DEFAULT 'warn',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS protocol_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	protocol_name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	base_branch TEXT NOT NULL DEFAULT '',
	worktree_path TEXT NOT NULL DEFAULT '',
	protocol_root TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	template_config TEXT NOT NULL DEFAULT '{}',
	template_source TEXT NOT NULL DEFAULT '',
	policy_pack_key TEXT NOT NULL DEFAULT '',
	policy_pack_version TEXT NOT NULL DEFAULT '',
	policy_effective_hash TEXT NOT NULL DEFAULT '',
	policy_effective_json TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (project_id, protocol_name)
);

CREATE TABLE IF NOT EXISTS step_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	protocol_run_id INTEGER NOT NULL REFERENCES protocol_runs(id) ON DELETE CASCADE,
	step_index INTEGER NOT NULL,
	step_name TEXT NOT NULL,
	step_type TEXT NOT NULL DEFAULT 'work',
	status TEXT NOT NULL DEFAULT 'pending',
	retries INTEGER NOT NULL DEFAULT 0,
	priority INTEGER NOT NULL DEFAULT 0,
	model TEXT NOT NULL DEFAULT '',
	engine_id TEXT NOT NULL DEFAULT '',
	policy TEXT NOT NULL DEFAULT '{}',
	runtime_state TEXT NOT NULL DEFAULT '{}',
	depends_on TEXT NOT NULL DEFAULT '[]',
	parallel_group TEXT NOT NULL DEFAULT '',
	assigned_agent TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (protocol_run_id, step_index),
	UNIQUE (protocol_run_id, step_name)
);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	protocol_run_id INTEGER,
	step_run_id INTEGER,
	project_id INTEGER,
	event_type TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS policy_packs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	key TEXT NOT NULL,
	version TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	pack TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (key, version)
);

CREATE TABLE IF NOT EXISTS codex_runs (
	run_id TEXT PRIMARY KEY,
	job_type TEXT NOT NULL,
	run_kind TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'queued',
	project_id INTEGER,
	protocol_run_id INTEGER,
	step_run_id INTEGER,
	queue TEXT NOT NULL DEFAULT 'default',
	attempt INTEGER NOT NULL DEFAULT 0,
	worker_id TEXT NOT NULL DEFAULT '',
	started_at DATETIME,
	finished_at DATETIME,
	prompt_version TEXT NOT NULL DEFAULT '',
	params TEXT NOT NULL DEFAULT '{}',
	result TEXT NOT NULL DEFAULT '{}',
	error TEXT NOT NULL DEFAULT '',
	log_path TEXT NOT NULL DEFAULT '',
	cost_tokens INTEGER NOT NULL DEFAULT 0,
	cost_cents INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS clarifications (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scope TEXT NOT NULL,
	project_id INTEGER NOT NULL,
	protocol_run_id INTEGER NOT NULL DEFAULT 0,
	step_run_id INTEGER NOT NULL DEFAULT 0,
	key TEXT NOT NULL,
	question TEXT NOT NULL DEFAULT '',
	options TEXT NOT NULL DEFAULT '[]',
	recommended TEXT NOT NULL DEFAULT '',
	blocking BOOLEAN NOT NULL DEFAULT 0,
	answer TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open',
	answered_at DATETIME,
	answered_by TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (scope, project_id, protocol_run_id, step_run_id, key)
);

CREATE INDEX IF NOT EXISTS idx_protocol_runs_project ON protocol_runs(project_id);
CREATE INDEX IF NOT EXISTS idx_step_runs_protocol ON step_runs(protocol_run_id);
CREATE INDEX IF NOT EXISTS idx_step_runs_status ON step_runs(status);
CREATE INDEX IF NOT EXISTS idx_events_protocol ON events(protocol_run_id, id);
CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id, id);
CREATE INDEX IF NOT EXISTS idx_events_step ON events(step_run_id, id);
CREATE INDEX IF NOT EXISTS idx_codex_runs_protocol ON codex_runs(protocol_run_id);
CREATE INDEX IF NOT EXISTS idx_codex_runs_step ON codex_runs(step_run_id);
CREATE INDEX IF NOT EXISTS idx_codex_runs_status ON codex_runs(status);
CREATE INDEX IF NOT EXISTS idx_clarifications_scope ON clarifications(project_id, protocol_run_id, step_run_id);
`

// Open creates or opens a SQLite database at the given path and ensures the schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// migrate applies incremental forward-only schema migrations for existing
// databases. Downgrades exist only in tests.
func migrate(db *sql.DB) error {
	return addColumnIfMissing(db, "step_runs", "parallel_group", `ALTER TABLE step_runs ADD COLUMN parallel_group TEXT NOT NULL DEFAULT ''`)
}

// addColumnIfMissing runs ddl only if column does not already exist on table,
// mirroring the teacher's pragma_table_info column-presence check pattern.
func addColumnIfMissing(db *sql.DB, table, column, ddl string) error {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&count)
	if err != nil {
		return fmt.Errorf("check %s.%s column: %w", table, column, err)
	}
	if count == 0 {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("add %s.%s column: %w", table, column, err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for callers that need raw transactions
// (e.g. the lifecycle controller's multi-table updates).
func (s *Store) DB() *sql.DB {
	return s.db
}

func now() time.Time {
	return time.Now().UTC()
}
