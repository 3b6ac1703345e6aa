package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency.

var (
	// Registry errors
	ErrTaskNotFound = errors.New("task not found")

	// Journal errors
	ErrJournalClosed = errors.New("task journal is closed")
)
