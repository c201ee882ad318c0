// Package emit provides pluggable observability for workflow walks.
package emit

// Event is an observability event emitted during a walk.
//
// The engine emits events for walk lifecycle transitions (started,
// suspended, resumed, completed, failed), node completions, and routing
// overrides. Emitters can log them, convert them to spans, or drop them.
type Event struct {
	// ThreadID identifies the workflow instance that emitted this event.
	ThreadID string

	// Step is the sequential node-execution number within the current
	// walk (1-indexed). Zero for walk-level events.
	Step int

	// NodeID identifies the node involved, if any.
	NodeID string

	// Msg names the event, e.g. "node_completed", "walk_suspended".
	Msg string

	// Meta carries additional structured data. Common keys:
	//   - "duration_ms": node execution duration
	//   - "error": failure details
	//   - "next": destination chosen by routing
	//   - "forced": destination forced by the revisit ceiling
	Meta map[string]interface{}
}

// Emitter receives observability events from workflow execution.
//
// Implementations must be safe for concurrent use and must not block or
// panic: a slow or failing observability backend must never stall a walk.
type Emitter interface {
	Emit(event Event)
}
