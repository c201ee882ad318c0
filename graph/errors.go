package graph

import "errors"

// ErrNoCheckpoint is returned by Resume when no checkpoint exists for the
// thread id. Nothing was mutated; the caller should start a new walk
// instead.
var ErrNoCheckpoint = errors.New("no checkpoint for thread")

// ErrWalkInProgress is returned when Start or Resume is called for a thread
// id whose previous call has not returned yet. Walks for one thread are
// strictly serialized; contention is rejected as a conflict rather than
// queued.
var ErrWalkInProgress = errors.New("walk already in progress for thread")

// ConfigError reports an invalid graph definition: a missing node, an edge
// to an unknown destination, or a router that returned a value outside its
// declared target set. Configuration errors are fatal and are never
// converted into a fallback response.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "graph config: " + e.Message
}

// StoreError wraps a checkpoint store failure encountered mid-walk. The
// walk cannot make durable progress without its store, so this is surfaced
// to the caller rather than recovered.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "checkpoint store " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
