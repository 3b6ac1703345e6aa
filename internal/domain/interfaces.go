package domain

import (
	"encoding/json"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// The registry implements TaskRegistry; the api and health layers depend on it.

// TaskRegistry is the task store consumed by the transport layer.
type TaskRegistry interface {
	// Create records a new pending task. taskType is any JSON value.
	Create(taskType json.RawMessage) Task

	// List returns a snapshot of every task in creation order.
	List() []Task

	// Get returns a single task.
	Get(id TaskID) (Task, error)

	// Complete marks a task completed and stores its result.
	Complete(id TaskID, result json.RawMessage) (Task, error)
}

// TaskEventKind names a journal entry.
type TaskEventKind string

const (
	EventCreated   TaskEventKind = "created"
	EventCompleted TaskEventKind = "completed"
)

// TaskEvent is one append-only record of a registry mutation.
type TaskEvent struct {
	RunID  string          `json:"run_id"`
	TaskID TaskID          `json:"task_id"`
	Kind   TaskEventKind   `json:"kind"`
	Type   json.RawMessage `json:"type"`
	Result json.RawMessage `json:"result,omitempty"`
	At     time.Time       `json:"at"`
}
