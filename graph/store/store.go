// Package store provides checkpoint persistence for workflow walks.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no checkpoint exists for the requested
// thread id.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is the resume point for one thread: the accumulated state plus
// the node the walk will execute next. Exactly one checkpoint is retained
// per thread id; each save overwrites the previous one, so storage stays
// bounded regardless of walk length.
type Checkpoint[S any] struct {
	// ThreadID identifies the conversation/workflow instance.
	ThreadID string `json:"thread_id"`

	// State is the accumulated workflow state after the last completed node.
	// Must be JSON-serializable for the database-backed stores.
	State S `json:"state"`

	// PendingNode is the node the walk executes next on resume. For a
	// suspended walk this is the gate node; for a finished walk it is the
	// engine's End marker.
	PendingNode string `json:"pending_node"`

	// CreatedAt records when this checkpoint was written.
	CreatedAt time.Time `json:"created_at"`
}

// Store persists the latest checkpoint per thread id.
//
// Implementations must be safe for concurrent use: many threads checkpoint
// independently, and a resume may come from a different goroutine (or, for
// the database-backed stores, a different process) than the one that
// suspended.
//
// Type parameter S is the state type to persist.
type Store[S any] interface {
	// Save writes the checkpoint for cp.ThreadID, replacing any previous
	// checkpoint for that thread.
	Save(ctx context.Context, cp Checkpoint[S]) error

	// Load returns the latest checkpoint for the thread id.
	// Returns ErrNotFound if the thread has never been checkpointed.
	Load(ctx context.Context, threadID string) (Checkpoint[S], error)

	// Delete removes the checkpoint for the thread id, if any.
	// Deleting a missing checkpoint is not an error.
	Delete(ctx context.Context, threadID string) error
}
