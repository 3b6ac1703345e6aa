package sqlite

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tutu-network/taskd/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "journal.db")); os.IsNotExist(err) {
		t.Error("journal.db should exist")
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		db, err := Open(dir)
		if err != nil {
			t.Fatalf("Open() #%d error: %v", i, err)
		}
		db.Close()
	}
}

// ─── Runs ───────────────────────────────────────────────────────────────────

func TestRecordRun(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	if err := db.RecordRun("run-a", now); err != nil {
		t.Fatalf("RecordRun() error: %v", err)
	}
	if err := db.RecordRun("run-b", now.Add(time.Second)); err != nil {
		t.Fatalf("RecordRun() error: %v", err)
	}
	// Duplicate is ignored
	if err := db.RecordRun("run-a", now); err != nil {
		t.Fatalf("duplicate RecordRun() error: %v", err)
	}

	runs, err := db.Runs()
	if err != nil {
		t.Fatalf("Runs() error: %v", err)
	}
	if len(runs) != 2 || runs[0] != "run-a" || runs[1] != "run-b" {
		t.Errorf("Runs() = %v, want [run-a run-b]", runs)
	}
}

// ─── Task Events ────────────────────────────────────────────────────────────

func TestInsertEvents_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	at := time.Unix(1700000000, 42)

	events := []domain.TaskEvent{
		{RunID: "r1", TaskID: 1, Kind: domain.EventCreated, Type: domain.StringType("build"), At: at},
		{RunID: "r1", TaskID: 1, Kind: domain.EventCompleted, Type: domain.StringType("build"), Result: json.RawMessage(`{"ok":true}`), At: at},
		{RunID: "r2", TaskID: 1, Kind: domain.EventCreated, Type: domain.StringType("other"), At: at},
	}
	if err := db.InsertEvents(events); err != nil {
		t.Fatalf("InsertEvents() error: %v", err)
	}

	got, err := db.Events("r1")
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Kind != domain.EventCreated || got[1].Kind != domain.EventCompleted {
		t.Errorf("kinds = %s, %s", got[0].Kind, got[1].Kind)
	}
	if got[0].Result != nil {
		t.Errorf("created event Result = %s, want nil", got[0].Result)
	}
	if string(got[1].Result) != `{"ok":true}` {
		t.Errorf("Result = %s", got[1].Result)
	}
	if !got[1].At.Equal(at) {
		t.Errorf("At = %v, want %v", got[1].At, at)
	}
}

func TestEvents_UnknownRun(t *testing.T) {
	db := newTestDB(t)
	got, err := db.Events("missing")
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
