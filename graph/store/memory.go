package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemStore is an in-memory implementation of Store[S].
//
// Designed for tests and single-process development runs. Checkpoints are
// deep-copied on save and load via a JSON round-trip so callers can never
// mutate a stored snapshot through shared slices or pointers.
//
// Data does not survive a restart; use SQLiteStore or MySQLStore when
// suspended walks must outlive the process.
type MemStore[S any] struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint[S]
}

// NewMemStore creates an empty in-memory checkpoint store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		checkpoints: make(map[string]Checkpoint[S]),
	}
}

// Save stores the checkpoint, replacing any previous one for the thread.
func (m *MemStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	if cp.ThreadID == "" {
		return fmt.Errorf("thread id cannot be empty")
	}

	copied, err := deepCopy(cp)
	if err != nil {
		return fmt.Errorf("failed to copy checkpoint: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cp.ThreadID] = copied
	return nil
}

// Load returns the latest checkpoint for the thread id.
func (m *MemStore[S]) Load(ctx context.Context, threadID string) (Checkpoint[S], error) {
	m.mu.RLock()
	cp, ok := m.checkpoints[threadID]
	m.mu.RUnlock()

	if !ok {
		return Checkpoint[S]{}, fmt.Errorf("thread %q: %w", threadID, ErrNotFound)
	}

	copied, err := deepCopy(cp)
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to copy checkpoint: %w", err)
	}
	return copied, nil
}

// Delete removes the checkpoint for the thread id.
func (m *MemStore[S]) Delete(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, threadID)
	return nil
}

// deepCopy clones a checkpoint through a JSON round-trip. Works for any
// JSON-serializable state type; unexported fields are not carried over.
func deepCopy[S any](cp Checkpoint[S]) (Checkpoint[S], error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return Checkpoint[S]{}, err
	}
	var out Checkpoint[S]
	if err := json.Unmarshal(data, &out); err != nil {
		return Checkpoint[S]{}, err
	}
	return out, nil
}
