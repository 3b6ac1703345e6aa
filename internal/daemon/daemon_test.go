package daemon

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/tutu-network/taskd/internal/client"
	"github.com/tutu-network/taskd/internal/domain"
	"github.com/tutu-network/taskd/internal/infra/sqlite"
)

// startDaemon serves d on a random port and returns a client plus a stop
// function that waits for shutdown.
func startDaemon(t *testing.T, d *Daemon) (*client.Client, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.ServeListener(ctx, ln) }()

	stop := func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("ServeListener() error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("daemon did not shut down")
		}
	}
	return client.New("http://"+ln.Addr().String(), nil), stop
}

func TestDaemon_ServeLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry.Prometheus = false

	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	c, stop := startDaemon(t, d)

	ctx := context.Background()
	task, err := c.Submit(ctx, domain.StringType("build"))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if _, err := c.Complete(ctx, task.ID, json.RawMessage(`{"ok":true}`)); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	stop()

	if d.Registry.Len() != 1 {
		t.Errorf("Len() = %d, want 1", d.Registry.Len())
	}
}

func TestDaemon_Journal(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Journal.Enabled = true
	cfg.Journal.Dir = dir

	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	if d.Journal == nil {
		t.Fatal("Journal should be set when enabled")
	}
	c, stop := startDaemon(t, d)

	ctx := context.Background()
	a, _ := c.Submit(ctx, domain.StringType("a"))
	c.Submit(ctx, domain.StringType("b"))
	c.Complete(ctx, a.ID, json.RawMessage(`"done"`))
	stop()

	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer db.Close()

	events, err := db.Events(d.RunID)
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}
	if events[2].Kind != domain.EventCompleted || string(events[2].Result) != `"done"` {
		t.Errorf("last event = %+v", events[2])
	}
}

func TestDaemon_FreshRegistryPerRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry.Prometheus = false

	first, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	first.Registry.Create(domain.StringType("x"))
	first.Close()

	second, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if second.Registry.Len() != 0 {
		t.Errorf("Len() = %d, tasks must not survive a restart", second.Registry.Len())
	}
	if first.RunID == second.RunID {
		t.Error("each daemon should get a distinct run id")
	}
}

func TestDaemon_CloseWithoutServe(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Journal.Enabled = true
	cfg.Journal.Dir = t.TempDir()

	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	d.Close()
	d.Close()
}

func TestDaemon_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Port = -1
	if _, err := NewWithConfig(cfg); err == nil {
		t.Error("NewWithConfig() should reject an invalid port")
	}
}
