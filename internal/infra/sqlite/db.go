// Package sqlite provides the SQLite-backed task event journal.
// The journal is an append-only audit trail of registry mutations. It is
// never read back into the registry, so tasks do not survive a restart.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/tutu-network/taskd/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/journal.db.
// Enables WAL mode and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "journal.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS task_events (
			seq      INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id   TEXT NOT NULL,
			task_id  INTEGER NOT NULL,
			kind     TEXT NOT NULL,
			type     TEXT NOT NULL, -- JSON
			result   TEXT,
			at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run_task ON task_events(run_id, task_id)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id     TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Runs ───────────────────────────────────────────────────────────────────

// RecordRun registers a process lifetime. Task ids restart at 1 on every
// run, so events are always keyed by run id as well.
func (d *DB) RecordRun(runID string, startedAt time.Time) error {
	_, err := d.db.Exec(
		`INSERT INTO runs (run_id, started_at) VALUES (?, ?)
		 ON CONFLICT(run_id) DO NOTHING`,
		runID, startedAt.UnixNano(),
	)
	return err
}

// Runs returns all recorded run ids, oldest first.
func (d *DB) Runs() ([]string, error) {
	rows, err := d.db.Query(`SELECT run_id FROM runs ORDER BY started_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}

// ─── Task Events ────────────────────────────────────────────────────────────

// InsertEvents appends a batch of events in a single transaction.
func (d *DB) InsertEvents(events []domain.TaskEvent) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO task_events (run_id, task_id, kind, type, result, at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.Exec(
			ev.RunID, int64(ev.TaskID), string(ev.Kind), string(ev.Type),
			nullableResult(ev.Result), ev.At.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert event for task %d: %w", ev.TaskID, err)
		}
	}
	return tx.Commit()
}

// Events returns every event of a run in append order.
func (d *DB) Events(runID string) ([]domain.TaskEvent, error) {
	rows, err := d.db.Query(
		`SELECT run_id, task_id, kind, type, result, at
		 FROM task_events WHERE run_id = ? ORDER BY seq ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.TaskEvent
	for rows.Next() {
		var ev domain.TaskEvent
		var taskID, at int64
		var typ string
		var result sql.NullString
		if err := rows.Scan(&ev.RunID, &taskID, &ev.Kind, &typ, &result, &at); err != nil {
			return nil, err
		}
		ev.Type = json.RawMessage(typ)
		ev.TaskID = domain.TaskID(taskID)
		ev.At = time.Unix(0, at)
		if result.Valid {
			ev.Result = []byte(result.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func nullableResult(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
