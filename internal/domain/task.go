// Package domain holds the task types shared by every layer of taskd.
// A Task is a unit of work reported by a client: submit → poll → complete.
// The service never runs the work itself, it only records the outcome.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TaskID identifies a task for the lifetime of the process.
type TaskID int64

// String returns the decimal form used in URL paths.
func (id TaskID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseTaskID parses a decimal path token into a TaskID.
func ParseTaskID(s string) (TaskID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse task id %q: %w", s, err)
	}
	return TaskID(n), nil
}

// TaskStatus tracks task lifecycle.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// Task is a tracked unit of work.
//
// Type and Result are opaque JSON values: the registry stores them verbatim
// and never interprets them. Type is always set (JSON null when the client
// sent none). Result is nil while the task is pending.
type Task struct {
	ID          TaskID          `json:"id"`
	Type        json.RawMessage `json:"type"`
	Status      TaskStatus      `json:"status"`
	Result      json.RawMessage `json:"result"`
	CreatedAt   time.Time       `json:"created_at,omitzero"`
	CompletedAt time.Time       `json:"completed_at,omitzero"`
}

// IsCompleted reports whether a result has been recorded.
func (t Task) IsCompleted() bool {
	return t.Status == TaskCompleted
}

// Clone returns a copy that shares no memory with t.
func (t Task) Clone() Task {
	t.Type = cloneRaw(t.Type)
	t.Result = cloneRaw(t.Result)
	return t
}

// TypeName returns Type for display: JSON strings are unquoted, any other
// value is returned as compact JSON.
func (t Task) TypeName() string {
	if len(t.Type) > 0 && t.Type[0] == '"' {
		var s string
		if err := json.Unmarshal(t.Type, &s); err == nil {
			return s
		}
	}
	return string(t.Type)
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}

// JSONNull is the stored form of an absent type or completion payload.
var JSONNull = json.RawMessage("null")

// StringType encodes s as a JSON string, the usual shape of a task type.
func StringType(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
