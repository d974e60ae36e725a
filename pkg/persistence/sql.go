// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// SQL drivers, registered by side effect of the blank imports.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agentrt/conductor/pkg/checkpoint"
	"github.com/agentrt/conductor/pkg/event"
	"github.com/agentrt/conductor/pkg/statemachine"
)

func stateFromString(s string) statemachine.State {
	return statemachine.State(s)
}

const createRunsSchemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id VARCHAR(255) PRIMARY KEY,
    project_id VARCHAR(255) NOT NULL,
    working_directory TEXT,
    status VARCHAR(32) NOT NULL,
    config_json TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP
)`

const createRunsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project_id)`

const createEventsSchemaSQL = `
CREATE TABLE IF NOT EXISTS run_events (
    event_id VARCHAR(255) PRIMARY KEY,
    run_id VARCHAR(255) NOT NULL,
    sequence_num INTEGER NOT NULL,
    envelope_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
)`

const createEventsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, sequence_num)`

const createCheckpointsSchemaSQL = `
CREATE TABLE IF NOT EXISTS checkpoints (
    id VARCHAR(255) PRIMARY KEY,
    run_id VARCHAR(255) NOT NULL,
    state VARCHAR(64) NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    opaque_json TEXT
)`

const createCheckpointsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id, timestamp)`

const createSessionsSchemaSQL = `
CREATE TABLE IF NOT EXISTS runtime_sessions (
    run_id VARCHAR(255) PRIMARY KEY,
    data_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

// SQLStore implements Store over database/sql, supporting postgres,
// mysql, and sqlite via dialect-specific placeholders and DDL.
type SQLStore struct {
	db      *sql.DB
	dialect string
	seq     map[string]int
}

// NewSQLStore opens an SQLStore against db using dialect ("postgres",
// "mysql", "sqlite", or "sqlite3"), creating its schema if absent.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("persistence: database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite", "sqlite3":
		if dialect == "sqlite3" {
			dialect = "sqlite"
		}
	default:
		return nil, fmt.Errorf("persistence: unsupported dialect %q (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect, seq: make(map[string]int)}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("persistence: schema init failed: %w", err)
	}
	return s, nil
}

// stateDirName is the engine's on-disk home, relative to a project's
// working directory.
const stateDirName = ".conductor"

// DefaultSQLitePath returns the sqlite database path under
// {basePath}/.conductor/state.db, creating the directory if needed.
// Multiple processes (a CLI and a dashboard, say) can point an
// SQLStore and a FileWatcher at this same path to stay in sync.
func DefaultSQLitePath(basePath string) (string, error) {
	if basePath == "" {
		basePath = "."
	}
	dir := filepath.Join(basePath, stateDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("persistence: create state directory: %w", err)
	}
	return filepath.Join(dir, "state.db"), nil
}

func (s *SQLStore) initSchema() error {
	stmts := []string{
		createRunsSchemaSQL, createRunsIndexSQL,
		createEventsSchemaSQL, createEventsIndexSQL,
		createCheckpointsSchemaSQL, createCheckpointsIndexSQL,
		createSessionsSchemaSQL,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ph returns the n-th (1-based) positional placeholder for the active
// dialect: postgres uses $n, mysql/sqlite use ?.
func (s *SQLStore) ph(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) upsertSQL(table string, cols []string, conflictCols []string) string {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = s.ph(i + 1)
	}
	switch s.dialect {
	case "postgres":
		updates := make([]string, 0, len(cols))
		for _, c := range cols {
			if !contains(conflictCols, c) {
				updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
			}
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(conflictCols, ", "), strings.Join(updates, ", "))
	case "mysql":
		updates := make([]string, 0, len(cols))
		for _, c := range cols {
			if !contains(conflictCols, c) {
				updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", c, c))
			}
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
	default: // sqlite
		return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	}
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// Write implements event.Sink, assigning a per-run monotonic sequence
// number for ordered retrieval.
func (s *SQLStore) Write(env event.Envelope) error {
	blob, err := json.Marshal(env)
	if err != nil {
		return err
	}
	seq := s.seq[env.RunID] + 1
	s.seq[env.RunID] = seq

	query := s.upsertSQL("run_events", []string{"event_id", "run_id", "sequence_num", "envelope_json", "created_at"}, []string{"event_id"})
	_, err = s.db.Exec(query, env.EventID, env.RunID, seq, string(blob), time.Now().UTC())
	return err
}

func (s *SQLStore) CreateRun(ctx context.Context, run Run) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO runs (id, project_id, working_directory, status, config_json, created_at, updated_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s)`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7))
	_, err = s.db.ExecContext(ctx, query, run.ID, run.ProjectID, run.WorkingDirectory, string(run.Status), string(cfg), run.CreatedAt, run.UpdatedAt)
	return err
}

func (s *SQLStore) UpdateRunStatus(ctx context.Context, runID string, status RunStatus, completedAt *string) error {
	query := fmt.Sprintf(`UPDATE runs SET status = %s, completed_at = %s, updated_at = %s WHERE id = %s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	_, err := s.db.ExecContext(ctx, query, string(status), completedAt, time.Now().UTC().Format(time.RFC3339), runID)
	return err
}

func (s *SQLStore) GetRun(ctx context.Context, runID string) (Run, error) {
	query := fmt.Sprintf(`SELECT id, project_id, working_directory, status, config_json, created_at, updated_at, completed_at
		FROM runs WHERE id = %s`, s.ph(1))
	row := s.db.QueryRowContext(ctx, query, runID)
	return scanRun(row)
}

func (s *SQLStore) ListRuns(ctx context.Context, projectID string) ([]Run, error) {
	var rows *sql.Rows
	var err error
	if projectID == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT id, project_id, working_directory, status, config_json, created_at, updated_at, completed_at FROM runs ORDER BY created_at`)
	} else {
		query := fmt.Sprintf(`SELECT id, project_id, working_directory, status, config_json, created_at, updated_at, completed_at
			FROM runs WHERE project_id = %s ORDER BY created_at`, s.ph(1))
		rows, err = s.db.QueryContext(ctx, query, projectID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r           Run
		cfg         string
		completedAt sql.NullString
	)
	if err := row.Scan(&r.ID, &r.ProjectID, &r.WorkingDirectory, &r.Status, &cfg, &r.CreatedAt, &r.UpdatedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, ErrNotFound
		}
		return Run{}, err
	}
	if cfg != "" {
		_ = json.Unmarshal([]byte(cfg), &r.Config)
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.String
	}
	return r, nil
}

func (s *SQLStore) DeleteRun(ctx context.Context, runID string) error {
	tables := []string{"run_events", "checkpoints", "runtime_sessions", "runs"}
	cols := map[string]string{"run_events": "run_id", "checkpoints": "run_id", "runtime_sessions": "run_id", "runs": "id"}
	for _, t := range tables {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", t, cols[t], s.ph(1))
		if _, err := s.db.ExecContext(ctx, query, runID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) GetEvents(ctx context.Context, runID string) ([]event.Envelope, error) {
	query := fmt.Sprintf(`SELECT envelope_json FROM run_events WHERE run_id = %s ORDER BY sequence_num`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []event.Envelope
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var env event.Envelope
		if err := json.Unmarshal([]byte(blob), &env); err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func (s *SQLStore) SaveCheckpoint(ctx context.Context, cp checkpoint.Checkpoint) error {
	opaque, err := json.Marshal(cp.OpaqueData)
	if err != nil {
		return err
	}
	query := s.upsertSQL("checkpoints", []string{"id", "run_id", "state", "timestamp", "opaque_json"}, []string{"id"})
	_, err = s.db.ExecContext(ctx, query, cp.ID, cp.RunID, string(cp.State), cp.Timestamp, string(opaque))
	return err
}

func (s *SQLStore) GetCheckpoint(ctx context.Context, id string) (checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT id, run_id, state, timestamp, opaque_json FROM checkpoints WHERE id = %s`, s.ph(1))
	return scanCheckpoint(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLStore) ListCheckpoints(ctx context.Context, runID string) ([]checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT id, run_id, state, timestamp, opaque_json FROM checkpoints WHERE run_id = %s ORDER BY timestamp`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []checkpoint.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetLatestCheckpoint(ctx context.Context, runID string) (checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT id, run_id, state, timestamp, opaque_json FROM checkpoints WHERE run_id = %s ORDER BY timestamp DESC LIMIT 1`, s.ph(1))
	return scanCheckpoint(s.db.QueryRowContext(ctx, query, runID))
}

func scanCheckpoint(row scanner) (checkpoint.Checkpoint, error) {
	var (
		cp      checkpoint.Checkpoint
		state   string
		opaque  string
	)
	if err := row.Scan(&cp.ID, &cp.RunID, &state, &cp.Timestamp, &opaque); err != nil {
		if err == sql.ErrNoRows {
			return checkpoint.Checkpoint{}, ErrNotFound
		}
		return checkpoint.Checkpoint{}, err
	}
	cp.State = stateFromString(state)
	if opaque != "" {
		_ = json.Unmarshal([]byte(opaque), &cp.OpaqueData)
	}
	return cp, nil
}

func (s *SQLStore) SaveSession(ctx context.Context, sess Session) error {
	data, err := json.Marshal(sess.Data)
	if err != nil {
		return err
	}
	query := s.upsertSQL("runtime_sessions", []string{"run_id", "data_json", "updated_at"}, []string{"run_id"})
	_, err = s.db.ExecContext(ctx, query, sess.RunID, string(data), sess.UpdatedAt)
	return err
}

func (s *SQLStore) GetSession(ctx context.Context, runID string) (Session, error) {
	query := fmt.Sprintf(`SELECT run_id, data_json, updated_at FROM runtime_sessions WHERE run_id = %s`, s.ph(1))
	row := s.db.QueryRowContext(ctx, query, runID)
	var (
		sess Session
		data string
	)
	if err := row.Scan(&sess.RunID, &data, &sess.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	if data != "" {
		_ = json.Unmarshal([]byte(data), &sess.Data)
	}
	return sess, nil
}

var _ Store = (*SQLStore)(nil)
