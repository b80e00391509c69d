// Package actionstore provides persistent storage for observed action
// snapshots.
//
// A process waiting on a long-running action can be interrupted (Ctrl+C,
// crash, redeploy) while the action keeps executing server-side. When a
// repository is attached to a client via cloudpoll.WithActionJournal,
// every snapshot a wait observes is recorded here, so the next process
// can list still-pending actions and resume waiting on them.
//
// Storage is backed by a SQLite database at
// ~/.config/cloudpoll/actions.db (or the platform-equivalent path
// returned by os.UserConfigDir).
package actionstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"nathanbeddoewebdev/cloudpoll"
)

const (
	appDir = "cloudpoll"
	dbFile = "actions.db"
)

// pathOverride, when non-empty, replaces the default database path.
// Intended for testing. Use SetPath / ResetPath to manage.
var pathOverride string

// SetPath overrides the database path. Intended for testing.
func SetPath(p string) { pathOverride = p }

// ResetPath clears the path override. Intended for testing.
func ResetPath() { pathOverride = "" }

// Repository defines the persistence interface for action records.
type Repository interface {
	// Save inserts or updates the record for its ActionID. On insert,
	// the primary key is assigned to the record.
	Save(record *Record) error

	// Get retrieves the record for a provider action id, or nil if the
	// action was never recorded.
	Get(actionID int64) (*Record, error)

	// ListPending returns all records whose last observed status is
	// "running", newest first.
	ListPending() ([]Record, error)

	// ListRecent returns the most recent n records regardless of status,
	// newest first.
	ListRecent(n int) ([]Record, error)

	// DeleteOlderThan removes completed/errored records older than d.
	// Returns the number of records removed.
	DeleteOlderThan(d time.Duration) (int64, error)

	// Close releases database resources.
	Close() error
}

// SQLiteRepository implements Repository backed by a local SQLite database.
// It also satisfies cloudpoll.ActionJournal, so it can be attached to a
// client directly.
type SQLiteRepository struct {
	db *sql.DB
}

// Compile-time check that SQLiteRepository can serve as a client journal.
var _ cloudpoll.ActionJournal = (*SQLiteRepository)(nil)

var _ Repository = (*SQLiteRepository)(nil)

// DefaultPath returns the default database path.
func DefaultPath() (string, error) {
	if pathOverride != "" {
		return pathOverride, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("actionstore: unable to determine config directory: %w", err)
	}
	return filepath.Join(base, appDir, dbFile), nil
}

// Open creates or opens the repository at the default path.
func Open() (*SQLiteRepository, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return OpenAt(path)
}

// OpenAt creates or opens a SQLite database at the given path.
// The parent directory is created if it does not exist.
func OpenAt(path string) (*SQLiteRepository, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("actionstore: failed to create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("actionstore: failed to open database: %w", err)
	}

	r := &SQLiteRepository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return r, nil
}

// migrate creates the actions table if it doesn't exist.
func (r *SQLiteRepository) migrate() error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS actions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			action_id     INTEGER NOT NULL UNIQUE,
			command       TEXT    NOT NULL DEFAULT '',
			status        TEXT    NOT NULL DEFAULT 'running',
			progress      INTEGER NOT NULL DEFAULT 0,
			error_code    TEXT    NOT NULL DEFAULT '',
			error_message TEXT    NOT NULL DEFAULT '',
			started       TEXT    NOT NULL DEFAULT '',
			finished      TEXT    NOT NULL DEFAULT '',
			created_at    TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at    TEXT    NOT NULL DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status);
	`
	if _, err := r.db.Exec(ddl); err != nil {
		return fmt.Errorf("actionstore: migration failed: %w", err)
	}
	return nil
}

// Track records an action snapshot, inserting or updating the row for
// its action id. It implements cloudpoll.ActionJournal.
func (r *SQLiteRepository) Track(a *cloudpoll.Action) error {
	if a == nil {
		return nil
	}

	record := &Record{
		ActionID: a.ID,
		Command:  a.Command,
		Status:   string(a.Status),
		Progress: a.Progress,
		Started:  a.Started,
		Finished: a.Finished,
	}
	if a.Error != nil {
		record.ErrorCode = a.Error.Code
		record.ErrorMessage = a.Error.Message
	}

	return r.Save(record)
}

// Save inserts the record or, when a row for its ActionID already exists,
// updates that row in place. CreatedAt is preserved across updates.
func (r *SQLiteRepository) Save(record *Record) error {
	record.UpdatedAt = time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}

	_, err := r.db.Exec(`
		INSERT INTO actions (action_id, command, status, progress, error_code, error_message, started, finished, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(action_id) DO UPDATE SET
			command=excluded.command, status=excluded.status, progress=excluded.progress,
			error_code=excluded.error_code, error_message=excluded.error_message,
			started=excluded.started, finished=excluded.finished, updated_at=excluded.updated_at`,
		record.ActionID, record.Command, record.Status, record.Progress,
		record.ErrorCode, record.ErrorMessage,
		formatTime(record.Started), formatTimePtr(record.Finished),
		record.CreatedAt.Format(time.RFC3339Nano), record.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("actionstore: save failed: %w", err)
	}

	if record.ID == 0 {
		row := r.db.QueryRow(`SELECT id FROM actions WHERE action_id = ?`, record.ActionID)
		if err := row.Scan(&record.ID); err != nil {
			return fmt.Errorf("actionstore: failed to read back record ID: %w", err)
		}
	}
	return nil
}

// Get retrieves the record for a provider action id.
func (r *SQLiteRepository) Get(actionID int64) (*Record, error) {
	row := r.db.QueryRow(`
		SELECT id, action_id, command, status, progress, error_code, error_message,
		       started, finished, created_at, updated_at
		FROM actions WHERE action_id = ?`, actionID)

	record, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("actionstore: query failed: %w", err)
	}
	return record, nil
}

// ListPending returns all records whose last observed status is "running".
func (r *SQLiteRepository) ListPending() ([]Record, error) {
	rows, err := r.db.Query(`
		SELECT id, action_id, command, status, progress, error_code, error_message,
		       started, finished, created_at, updated_at
		FROM actions WHERE status = 'running' ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("actionstore: query failed: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// ListRecent returns the most recent n records regardless of status.
func (r *SQLiteRepository) ListRecent(n int) ([]Record, error) {
	rows, err := r.db.Query(`
		SELECT id, action_id, command, status, progress, error_code, error_message,
		       started, finished, created_at, updated_at
		FROM actions ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("actionstore: query failed: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// DeleteOlderThan removes completed/errored records older than d.
func (r *SQLiteRepository) DeleteOlderThan(d time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-d).Format(time.RFC3339Nano)
	result, err := r.db.Exec(`
		DELETE FROM actions WHERE status != 'running' AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("actionstore: delete failed: %w", err)
	}
	return result.RowsAffected()
}

// Close releases database resources.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// formatTime renders a timestamp for storage; the zero time becomes ''.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// formatTimePtr renders an optional timestamp for storage; nil becomes ''.
func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// parseTimePtr reads an optional timestamp column; '' becomes nil.
func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

// scanRow scans a single row into a Record.
func scanRow(row *sql.Row) (*Record, error) {
	var record Record
	var startedStr, finishedStr, createdStr, updatedStr string
	err := row.Scan(
		&record.ID, &record.ActionID, &record.Command, &record.Status, &record.Progress,
		&record.ErrorCode, &record.ErrorMessage,
		&startedStr, &finishedStr, &createdStr, &updatedStr,
	)
	if err != nil {
		return nil, err
	}
	record.Started, _ = time.Parse(time.RFC3339Nano, startedStr)
	record.Finished = parseTimePtr(finishedStr)
	record.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	record.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &record, nil
}

// scanRows scans multiple rows into Records.
func scanRows(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var record Record
		var startedStr, finishedStr, createdStr, updatedStr string
		err := rows.Scan(
			&record.ID, &record.ActionID, &record.Command, &record.Status, &record.Progress,
			&record.ErrorCode, &record.ErrorMessage,
			&startedStr, &finishedStr, &createdStr, &updatedStr,
		)
		if err != nil {
			return nil, fmt.Errorf("actionstore: scan failed: %w", err)
		}
		record.Started, _ = time.Parse(time.RFC3339Nano, startedStr)
		record.Finished = parseTimePtr(finishedStr)
		record.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		record.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
		records = append(records, record)
	}
	return records, rows.Err()
}
