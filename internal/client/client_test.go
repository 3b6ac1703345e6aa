package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tutu-network/taskd/internal/api"
	"github.com/tutu-network/taskd/internal/domain"
	"github.com/tutu-network/taskd/internal/registry"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(api.NewServer(registry.New()).Handler())
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", nil)
}

func TestClient_Lifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	created, err := c.Submit(ctx, domain.StringType("build"))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if created.Status != domain.TaskPending || created.TypeName() != "build" {
		t.Errorf("Submit() = %+v", created)
	}

	done, err := c.Complete(ctx, created.ID, json.RawMessage(`{"ok":true}`))
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if done.Status != domain.TaskCompleted || string(done.Result) != `{"ok":true}` {
		t.Errorf("Complete() = %+v", done)
	}

	got, err := c.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != domain.TaskCompleted {
		t.Errorf("Get().Status = %q", got.Status)
	}

	tasks, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != created.ID {
		t.Errorf("List() = %+v", tasks)
	}
}

func TestClient_CompleteNilResult(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	created, _ := c.Submit(ctx, domain.StringType("x"))
	done, err := c.Complete(ctx, created.ID, nil)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if string(done.Result) != "null" {
		t.Errorf("Result = %s, want null", done.Result)
	}
}

func TestClient_NotFound(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Complete(ctx, 9999, nil); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("Complete() err = %v, want ErrTaskNotFound", err)
	}
	if _, err := c.Get(ctx, 9999); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("Get() err = %v, want ErrTaskNotFound", err)
	}
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).List(context.Background())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusInternalServerError || se.Body != "boom" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestClient_ListEmpty(t *testing.T) {
	c := newTestClient(t)
	tasks, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("len = %d, want 0", len(tasks))
	}
}
