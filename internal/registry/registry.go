// Package registry implements the in-memory task registry.
//
// The registry owns every task record for the life of the process. Tasks are
// kept in a slice to preserve insertion order for List, with a map index for
// O(1) lookup. A single RWMutex serializes Create and Complete; readers copy
// records out under the read lock so callers never share memory with the store.
package registry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tutu-network/taskd/internal/domain"
)

// Observer is notified of every registry mutation, in the order the
// mutations were applied. Callbacks run under the registry lock and must
// not block or call back into the registry.
type Observer interface {
	TaskCreated(t domain.Task)
	TaskCompleted(t domain.Task, overwrote bool)
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observers = append(r.observers, o) }
}

// WithClock overrides the timestamp source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Stats is a point-in-time count of tasks by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

// Registry holds all tasks in memory.
type Registry struct {
	mu        sync.RWMutex
	tasks     []*domain.Task
	index     map[domain.TaskID]*domain.Task
	lastID    domain.TaskID
	completed int

	now       func() time.Time
	observers []Observer
}

var _ domain.TaskRegistry = (*Registry)(nil)

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		index: make(map[domain.TaskID]*domain.Task),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create records a new pending task. It never fails; any JSON value is a
// valid type. A nil or empty type is stored as JSON null.
func (r *Registry) Create(taskType json.RawMessage) domain.Task {
	if len(taskType) == 0 {
		taskType = domain.JSONNull
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	t := &domain.Task{
		ID:        r.lastID,
		Type:      append(json.RawMessage(nil), taskType...),
		Status:    domain.TaskPending,
		CreatedAt: r.now(),
	}
	r.tasks = append(r.tasks, t)
	r.index[t.ID] = t

	out := t.Clone()
	for _, o := range r.observers {
		o.TaskCreated(out)
	}
	return out
}

// List returns a snapshot of all tasks in creation order.
// The result is never nil.
func (r *Registry) List() []domain.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Task, len(r.tasks))
	for i, t := range r.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Get returns the task with the given id.
func (r *Registry) Get(id domain.TaskID) (domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.index[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("task %d: %w", id, domain.ErrTaskNotFound)
	}
	return t.Clone(), nil
}

// Complete marks a task completed and stores result. Completing an already
// completed task overwrites its previous result. A nil result is stored as
// JSON null so that a completed task always carries a result.
func (r *Registry) Complete(id domain.TaskID, result json.RawMessage) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.index[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("task %d: %w", id, domain.ErrTaskNotFound)
	}

	overwrote := t.IsCompleted()
	if !overwrote {
		r.completed++
	}
	if len(result) == 0 {
		result = domain.JSONNull
	}
	t.Status = domain.TaskCompleted
	t.Result = append(json.RawMessage(nil), result...)
	t.CompletedAt = r.now()

	out := t.Clone()
	for _, o := range r.observers {
		o.TaskCompleted(out, overwrote)
	}
	return out, nil
}

// Len returns the number of tasks held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Stats returns task counts by status.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Total:     len(r.tasks),
		Pending:   len(r.tasks) - r.completed,
		Completed: r.completed,
	}
}

// Verify walks every record and checks the registry invariants: ids are
// unique and strictly increasing in insertion order, the index matches the
// ordered slice, and a result is present exactly when a task is completed.
func (r *Registry) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.index) != len(r.tasks) {
		return fmt.Errorf("index holds %d tasks, list holds %d", len(r.index), len(r.tasks))
	}
	var prev domain.TaskID
	completed := 0
	for _, t := range r.tasks {
		if t.ID <= prev {
			return fmt.Errorf("task %d out of order after %d", t.ID, prev)
		}
		prev = t.ID
		if r.index[t.ID] != t {
			return fmt.Errorf("task %d: index mismatch", t.ID)
		}
		if len(t.Type) == 0 {
			return fmt.Errorf("task %d: missing type", t.ID)
		}
		switch t.Status {
		case domain.TaskPending:
			if t.Result != nil {
				return fmt.Errorf("task %d: pending task has a result", t.ID)
			}
		case domain.TaskCompleted:
			if t.Result == nil {
				return fmt.Errorf("task %d: completed task has no result", t.ID)
			}
			completed++
		default:
			return fmt.Errorf("task %d: unknown status %q", t.ID, t.Status)
		}
	}
	if completed != r.completed {
		return fmt.Errorf("completed count %d, want %d", r.completed, completed)
	}
	return nil
}
