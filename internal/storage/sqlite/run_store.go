// Package sqlite provides a single-file run ledger backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/JakeFAU/progression/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "progress_runs"

// RunStore implements store.RunRepository on a SQLite table.
type RunStore struct {
	db    *sql.DB
	table string
}

var _ store.RunRepository = (*RunStore)(nil)

// Open opens (creating if needed) the database at path and ensures the ledger
// table exists. ":memory:" keeps everything in process.
func Open(ctx context.Context, path, table string) (*RunStore, error) {
	if path == "" {
		return nil, errors.New("sqlite ledger path is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	// One writer at a time; an in-memory database also lives on a single connection.
	db.SetMaxOpenConns(1)

	s := &RunStore{db: db, table: name}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the database handle.
func (s *RunStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

func (s *RunStore) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	tracker_id  TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	finished_at DATETIME,
	status      TEXT NOT NULL,
	value       REAL NOT NULL DEFAULT 0,
	signals     INTEGER NOT NULL DEFAULT 0
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

// StartRun inserts a running row, ignoring duplicates.
func (s *RunStore) StartRun(ctx context.Context, run store.Run) error {
	query := fmt.Sprintf(`
INSERT OR IGNORE INTO %s (id, tracker_id, name, started_at, updated_at, status, value, signals)
VALUES (?, ?, ?, ?, ?, ?, ?, 0)`, s.table)
	started := run.StartedAt.UTC()
	if _, err := s.db.ExecContext(ctx, query,
		run.ID.String(), run.TrackerID.String(), run.Name, started, started, string(store.RunRunning), run.Value,
	); err != nil {
		return fmt.Errorf("insert run start: %w", err)
	}
	return nil
}

// RecordProgress updates value and signal count for a running run.
func (s *RunStore) RecordProgress(
	ctx context.Context,
	runID uuid.UUID,
	value float64,
	deltaSignals int64,
	at time.Time,
) error {
	query := fmt.Sprintf(`
UPDATE %s
SET value = ?, signals = signals + ?, updated_at = MAX(updated_at, ?)
WHERE id = ? AND status = ?`, s.table)
	if _, err := s.db.ExecContext(ctx, query,
		value, deltaSignals, at.UTC(), runID.String(), string(store.RunRunning),
	); err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

// FinishRun closes a running run; finished runs are left untouched.
func (s *RunStore) FinishRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	value float64,
) error {
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = ?, updated_at = ?, status = ?, value = ?
WHERE id = ? AND status = ?`, s.table)
	at := finishedAt.UTC()
	if _, err := s.db.ExecContext(ctx, query,
		at, at, string(status), value, runID.String(), string(store.RunRunning),
	); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := fmt.Sprintf(`
SELECT id, tracker_id, name, started_at, updated_at, finished_at, status, value, signals
FROM %s
WHERE id = ?`, s.table)
	run, err := scanRun(s.db.QueryRowContext(ctx, query, runID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	query := fmt.Sprintf(`
SELECT id, tracker_id, name, started_at, updated_at, finished_at, status, value, signals
FROM %s
WHERE (? IS NULL OR status = ?)
ORDER BY started_at DESC
LIMIT ? OFFSET ?`, s.table)
	var filter any
	if status != nil {
		filter = string(*status)
	}
	rows, err := s.db.QueryContext(ctx, query, filter, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (store.Run, error) {
	var (
		run       store.Run
		id        string
		trackerID string
		finished  sql.NullTime
		status    string
	)
	if err := row.Scan(
		&id,
		&trackerID,
		&run.Name,
		&run.StartedAt,
		&run.UpdatedAt,
		&finished,
		&status,
		&run.Value,
		&run.Signals,
	); err != nil {
		return store.Run{}, err
	}
	var err error
	if run.ID, err = uuid.Parse(id); err != nil {
		return store.Run{}, fmt.Errorf("parse run id: %w", err)
	}
	if run.TrackerID, err = uuid.Parse(trackerID); err != nil {
		return store.Run{}, fmt.Errorf("parse tracker id: %w", err)
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
