package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tutu-network/taskd/internal/domain"
	"github.com/tutu-network/taskd/internal/registry"
)

func TestJournal_RecordsRegistryEvents(t *testing.T) {
	db := newTestDB(t)
	j := NewJournal(db, "run-1", 16)
	j.Start(context.Background())

	r := registry.New(registry.WithObserver(j))
	a := r.Create(domain.StringType("build"))
	b := r.Create(json.RawMessage(`{"kind":"test","n":2}`))
	if _, err := r.Complete(a.ID, json.RawMessage(`{"ok":true}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Complete(a.ID, json.RawMessage(`{"ok":false}`)); err != nil {
		t.Fatal(err)
	}

	if err := j.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	events, err := db.Events("run-1")
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	want := []struct {
		id   domain.TaskID
		kind domain.TaskEventKind
	}{
		{a.ID, domain.EventCreated},
		{b.ID, domain.EventCreated},
		{a.ID, domain.EventCompleted},
		{a.ID, domain.EventCompleted},
	}
	if len(events) != len(want) {
		t.Fatalf("len = %d, want %d", len(events), len(want))
	}
	for i, w := range want {
		if events[i].TaskID != w.id || events[i].Kind != w.kind {
			t.Errorf("events[%d] = %d/%s, want %d/%s", i, events[i].TaskID, events[i].Kind, w.id, w.kind)
		}
	}
	if string(events[0].Type) != `"build"` || string(events[1].Type) != `{"kind":"test","n":2}` {
		t.Errorf("types = %s, %s", events[0].Type, events[1].Type)
	}
	if string(events[3].Result) != `{"ok":false}` {
		t.Errorf("last result = %s", events[3].Result)
	}

	runs, err := db.Runs()
	if err != nil {
		t.Fatalf("Runs() error: %v", err)
	}
	if len(runs) != 1 || runs[0] != "run-1" {
		t.Errorf("Runs() = %v", runs)
	}
}

func TestJournal_DropsWhenFull(t *testing.T) {
	db := newTestDB(t)
	j := NewJournal(db, "run-full", 2)

	// Writer not started: only the buffered events survive.
	for i := 1; i <= 5; i++ {
		j.TaskCreated(domain.Task{ID: domain.TaskID(i), Type: domain.StringType("x")})
	}

	j.Start(context.Background())
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	events, err := db.Events("run-full")
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("len = %d, want 2", len(events))
	}
}

func TestJournal_CloseWithoutStart(t *testing.T) {
	db := newTestDB(t)
	j := NewJournal(db, "run-idle", 4)
	j.TaskCreated(domain.Task{ID: 1})

	done := make(chan error, 1)
	go func() { done <- j.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close() error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close() blocked on a journal that was never started")
	}
}

func TestJournal_CloseTwice(t *testing.T) {
	db := newTestDB(t)
	j := NewJournal(db, "run-2", 4)
	j.Start(context.Background())

	if err := j.Close(); err != nil {
		t.Fatalf("first Close() error: %v", err)
	}
	if err := j.Close(); !errors.Is(err, domain.ErrJournalClosed) {
		t.Errorf("second Close() = %v, want ErrJournalClosed", err)
	}

	// Events after close are ignored, not panics.
	j.TaskCreated(domain.Task{ID: 1})
}
