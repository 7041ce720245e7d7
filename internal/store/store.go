package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for saved module-graph runs.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
  id               TEXT PRIMARY KEY,
  root             TEXT NOT NULL,
  entry_file       TEXT NOT NULL,
  entry_point      TEXT NOT NULL,
  policy           TEXT NOT NULL DEFAULT 'abort',
  started_at       TIMESTAMP NOT NULL,
  duration_ms      INTEGER NOT NULL DEFAULT 0,
  module_count     INTEGER NOT NULL DEFAULT 0,
  definition_count INTEGER NOT NULL DEFAULT 0,
  tree_hash        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS files (
  run_id          TEXT NOT NULL REFERENCES runs(id),
  file_id         INTEGER NOT NULL,
  path            TEXT NOT NULL,
  is_stdlib       BOOLEAN NOT NULL DEFAULT FALSE,
  hash            TEXT,
  PRIMARY KEY (run_id, file_id)
);

CREATE TABLE IF NOT EXISTS modules (
  run_id          TEXT NOT NULL REFERENCES runs(id),
  crate           INTEGER NOT NULL,
  local_id        INTEGER NOT NULL,
  parent_id       INTEGER,
  file_id         INTEGER NOT NULL,
  PRIMARY KEY (run_id, crate, local_id)
);

CREATE TABLE IF NOT EXISTS module_children (
  run_id          TEXT NOT NULL REFERENCES runs(id),
  crate           INTEGER NOT NULL,
  parent_id       INTEGER NOT NULL,
  name            TEXT NOT NULL,
  child_id        INTEGER NOT NULL,
  PRIMARY KEY (run_id, crate, parent_id, name)
);

CREATE TABLE IF NOT EXISTS definitions (
  id              INTEGER PRIMARY KEY,
  run_id          TEXT NOT NULL REFERENCES runs(id),
  crate           INTEGER NOT NULL,
  module_id       INTEGER NOT NULL,
  ordinal         INTEGER NOT NULL,
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  def_kind        TEXT NOT NULL,
  def_index       INTEGER NOT NULL,
  visibility      TEXT NOT NULL,
  is_stdlib       BOOLEAN NOT NULL DEFAULT FALSE,
  file_id         INTEGER NOT NULL,
  span_start      INTEGER NOT NULL,
  span_end        INTEGER NOT NULL,
  line            INTEGER NOT NULL DEFAULT 0,
  col             INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entry_points (
  run_id          TEXT PRIMARY KEY REFERENCES runs(id),
  name            TEXT NOT NULL,
  file_id         INTEGER NOT NULL,
  span_start      INTEGER NOT NULL,
  span_end        INTEGER NOT NULL,
  line            INTEGER NOT NULL DEFAULT 0,
  col             INTEGER NOT NULL DEFAULT 0,
  visibility      TEXT NOT NULL,
  unconstrained   BOOLEAN NOT NULL DEFAULT FALSE,
  params          TEXT NOT NULL DEFAULT '[]',
  return_type     TEXT
);

CREATE TABLE IF NOT EXISTS unrepresentable (
  id              INTEGER PRIMARY KEY,
  run_id          TEXT NOT NULL REFERENCES runs(id),
  name            TEXT NOT NULL,
  reason          TEXT NOT NULL,
  def_kind        TEXT,
  file_id         INTEGER NOT NULL,
  span_start      INTEGER NOT NULL,
  span_end        INTEGER NOT NULL
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_tree_hash ON runs(tree_hash);
CREATE INDEX IF NOT EXISTS idx_files_path ON files(path);
CREATE INDEX IF NOT EXISTS idx_modules_file ON modules(run_id, file_id);
CREATE INDEX IF NOT EXISTS idx_definitions_run ON definitions(run_id, crate, module_id, ordinal);
CREATE INDEX IF NOT EXISTS idx_definitions_name ON definitions(name);
CREATE INDEX IF NOT EXISTS idx_unrepresentable_run ON unrepresentable(run_id);
`

// runTables lists every table keyed by run_id, children first.
var runTables = []string{
	"unrepresentable",
	"entry_points",
	"definitions",
	"module_children",
	"modules",
	"files",
}

// DeleteRun transactionally removes a run and everything saved under it.
// Deletes in reverse-dependency order to respect FK constraints.
func (s *Store) DeleteRun(runID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteRunsTx(tx, []string{runID}); err != nil {
		return err
	}
	return tx.Commit()
}

// PruneRuns keeps the newest keep runs and deletes the rest. It returns the
// number of runs removed.
func (s *Store) PruneRuns(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	rows, err := s.db.Query("SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?", keep)
	if err != nil {
		return 0, fmt.Errorf("query old runs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate old runs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := deleteRunsTx(tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return len(ids), nil
}

func deleteRunsTx(tx *sql.Tx, ids []string) error {
	placeholders := placeholderList(len(ids))
	args := stringsToArgs(ids)
	for _, table := range runTables {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id IN ("+placeholders+")", args...); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if _, err := tx.Exec("DELETE FROM runs WHERE id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("delete runs: %w", err)
	}
	return nil
}
