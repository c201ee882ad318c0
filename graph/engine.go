// Package graph provides the workflow orchestration engine: a directed
// graph of nodes walked one step at a time, with reducer-merged partial
// state updates, per-step checkpointing, conditional routing, and a
// single designated suspension point for human-in-the-loop approval.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/supportgraph-go/graph/emit"
	"github.com/dshills/supportgraph-go/graph/store"
)

// DefaultMaxRevisits is the revisit ceiling applied when Options.MaxRevisits
// is zero. Once routers have sent a walk back to previously visited nodes
// this many times, routing is overridden and control is forced to the
// overflow node.
const DefaultMaxRevisits = 5

// WalkResult is the outcome of one Start or Resume call.
type WalkResult[S any] struct {
	// State is the accumulated workflow state when the walk stopped.
	State S

	// Suspended is true when the walk stopped at the gate node and is
	// waiting for an external decision. Resume continues it later.
	Suspended bool
}

// Options configures engine execution behavior.
type Options[S any] struct {
	// MaxRevisits bounds looping: it is the number of times a router may
	// send control back to an already-visited node within one walk before
	// the destination is overridden with the overflow node. Fixed edges
	// never consume the budget; a loop through several fixed edges counts
	// once, at the router that closed it. Zero means DefaultMaxRevisits;
	// negative disables the ceiling.
	MaxRevisits int

	// Fallback converts a node-level failure into a terminal state. It
	// receives the state accumulated so far and the failure, and must
	// return a state carrying a safe user-facing response. If nil, node
	// failures are returned to the caller as errors instead.
	Fallback func(state S, err error) S

	// Metrics receives walk and node metrics. Optional.
	Metrics *Metrics
}

// Engine walks a workflow graph for one thread id at a time.
//
// The engine executes the current node, merges its partial update into the
// state via the reducer, persists a checkpoint naming the next node, and
// follows the node's declared edge (fixed or router) until it reaches
// End, or reaches the designated gate node, where it suspends: the
// checkpoint records the gate as pending and control returns to the caller
// with Suspended=true. A later Resume call reloads the checkpoint and
// re-enters at the gate.
//
// Graph shape is fixed at compile time: every node has exactly one outgoing
// edge, router destinations are declared allow-sets, and any violation is a
// ConfigError before the first walk, never a silent fallback at walk time.
//
// Walks for distinct thread ids may run concurrently; calls for the same
// thread id are serialized, with contention rejected as ErrWalkInProgress.
//
// Type parameter S is the state type shared across the workflow.
type Engine[S any] struct {
	mu sync.RWMutex

	reducer Reducer[S]
	nodes   map[string]Node[S]
	fixed   map[string]string
	routers map[string]Router[S]

	startNode    string
	gateNode     string
	overflowNode string

	store   store.Store[S]
	emitter emit.Emitter
	opts    Options[S]

	compiled bool

	activeMu sync.Mutex
	active   map[string]struct{}
}

// New creates an engine with the given reducer, checkpoint store, emitter
// (may be nil), and options. Nodes and edges are registered afterwards with
// Add, Connect, Route, StartAt, SuspendBefore, and OverflowTo; the graph is
// validated by Compile (called implicitly by the first Start or Resume).
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, opts Options[S]) *Engine[S] {
	if opts.MaxRevisits == 0 {
		opts.MaxRevisits = DefaultMaxRevisits
	}
	return &Engine[S]{
		reducer: reducer,
		nodes:   make(map[string]Node[S]),
		fixed:   make(map[string]string),
		routers: make(map[string]Router[S]),
		store:   st,
		emitter: emitter,
		opts:    opts,
		active:  make(map[string]struct{}),
	}
}

// Add registers a node. Node IDs must be unique and non-empty.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if nodeID == "" {
		return &ConfigError{Message: "node ID cannot be empty"}
	}
	if nodeID == End {
		return &ConfigError{Message: "node ID " + End + " is reserved"}
	}
	if node == nil {
		return &ConfigError{Message: "node cannot be nil: " + nodeID}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &ConfigError{Message: "duplicate node ID: " + nodeID}
	}
	e.nodes[nodeID] = node
	e.compiled = false
	return nil
}

// StartAt sets the entry node for fresh walks.
func (e *Engine[S]) StartAt(nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.nodes[nodeID]; !exists {
		return &ConfigError{Message: "start node does not exist: " + nodeID}
	}
	e.startNode = nodeID
	e.compiled = false
	return nil
}

// Connect declares a fixed edge: after from executes, control always moves
// to to. Use End as the destination of the terminal node.
func (e *Engine[S]) Connect(from, to string) error {
	if from == "" || to == "" {
		return &ConfigError{Message: "edge endpoints cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := e.fixed[from]; dup {
		return &ConfigError{Message: "node already has a fixed edge: " + from}
	}
	if _, dup := e.routers[from]; dup {
		return &ConfigError{Message: "node already has a router: " + from}
	}
	e.fixed[from] = to
	e.compiled = false
	return nil
}

// Route declares a conditional edge: after from executes, router.Pick
// chooses the destination out of router.Targets.
func (e *Engine[S]) Route(from string, router Router[S]) error {
	if from == "" {
		return &ConfigError{Message: "router source cannot be empty"}
	}
	if router.Pick == nil {
		return &ConfigError{Message: "router has no Pick function: " + from}
	}
	if len(router.Targets) == 0 {
		return &ConfigError{Message: "router declares no targets: " + from}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := e.fixed[from]; dup {
		return &ConfigError{Message: "node already has a fixed edge: " + from}
	}
	if _, dup := e.routers[from]; dup {
		return &ConfigError{Message: "node already has a router: " + from}
	}
	e.routers[from] = router
	e.compiled = false
	return nil
}

// SuspendBefore designates the gate node. The engine stops a walk
// immediately before executing it, checkpointing the gate as pending, and
// only a Resume call executes it. This is the single suspension mechanism:
// no other node can pause a walk.
func (e *Engine[S]) SuspendBefore(nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.nodes[nodeID]; !exists {
		return &ConfigError{Message: "gate node does not exist: " + nodeID}
	}
	e.gateNode = nodeID
	e.compiled = false
	return nil
}

// OverflowTo sets the node control is forced to when the revisit ceiling
// trips. It should lead to End without further branching.
func (e *Engine[S]) OverflowTo(nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.nodes[nodeID]; !exists {
		return &ConfigError{Message: "overflow node does not exist: " + nodeID}
	}
	e.overflowNode = nodeID
	e.compiled = false
	return nil
}

// Compile validates the graph definition. It is idempotent and is invoked
// automatically by the first Start or Resume; calling it explicitly lets
// construction errors surface at boot rather than on the first request.
func (e *Engine[S]) Compile() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compileLocked()
}

func (e *Engine[S]) compileLocked() error {
	if e.compiled {
		return nil
	}
	if e.reducer == nil {
		return &ConfigError{Message: "reducer is required"}
	}
	if e.store == nil {
		return &ConfigError{Message: "checkpoint store is required"}
	}
	if e.startNode == "" {
		return &ConfigError{Message: "start node not set"}
	}

	for from, to := range e.fixed {
		if _, ok := e.nodes[from]; !ok {
			return &ConfigError{Message: "edge from unknown node: " + from}
		}
		if to != End {
			if _, ok := e.nodes[to]; !ok {
				return &ConfigError{Message: fmt.Sprintf("edge %s -> %s targets unknown node", from, to)}
			}
		}
	}
	for from, r := range e.routers {
		if _, ok := e.nodes[from]; !ok {
			return &ConfigError{Message: "router at unknown node: " + from}
		}
		for _, t := range r.Targets {
			if t == End {
				continue
			}
			if _, ok := e.nodes[t]; !ok {
				return &ConfigError{Message: fmt.Sprintf("router at %s declares unknown target %q", from, t)}
			}
		}
	}
	for id := range e.nodes {
		_, hasFixed := e.fixed[id]
		_, hasRouter := e.routers[id]
		if !hasFixed && !hasRouter {
			return &ConfigError{Message: "node has no outgoing edge: " + id}
		}
	}
	if len(e.routers) > 0 && e.opts.MaxRevisits > 0 && e.overflowNode == "" {
		return &ConfigError{Message: "overflow node required when routers and a revisit ceiling are configured"}
	}

	// A cycle made only of fixed edges has no router the revisit ceiling
	// could override, so it would never terminate.
	if from := e.fixedCycle(); from != "" {
		return &ConfigError{Message: "fixed edges form a cycle through node: " + from}
	}

	e.compiled = true
	return nil
}

// fixedCycle returns a node on a cycle of fixed edges, or "" when the
// fixed edges are acyclic. Each node has at most one fixed successor, so
// following the chain from every node and watching for re-entry suffices.
func (e *Engine[S]) fixedCycle() string {
	done := make(map[string]bool)
	for start := range e.fixed {
		if done[start] {
			continue
		}
		onPath := make(map[string]bool)
		current := start
		for {
			if done[current] {
				break
			}
			if onPath[current] {
				return current
			}
			onPath[current] = true
			next, ok := e.fixed[current]
			if !ok || next == End {
				break
			}
			current = next
		}
		for id := range onPath {
			done[id] = true
		}
	}
	return ""
}

// Start begins a fresh walk for the thread id from the entry node.
//
// The walk runs until it reaches End (Suspended=false) or transitions into
// the gate node (Suspended=true, checkpoint persisted for Resume). Node
// failures are converted into the fallback terminal state; the only errors
// returned are configuration problems, checkpoint store failures, and
// ErrWalkInProgress on per-thread contention.
func (e *Engine[S]) Start(ctx context.Context, threadID string, initial S) (WalkResult[S], error) {
	var zero WalkResult[S]
	if threadID == "" {
		return zero, fmt.Errorf("thread id cannot be empty")
	}

	e.mu.Lock()
	err := e.compileLocked()
	e.mu.Unlock()
	if err != nil {
		return zero, err
	}

	release, ok := e.lockThread(threadID)
	if !ok {
		return zero, fmt.Errorf("thread %q: %w", threadID, ErrWalkInProgress)
	}
	defer release()

	e.opts.Metrics.walkStarted()
	e.emit(emit.Event{ThreadID: threadID, NodeID: e.startNode, Msg: "walk_started"})

	// Degenerate but legal: a graph whose entry is the gate suspends
	// before doing anything.
	if e.startNode == e.gateNode {
		if err := e.checkpoint(ctx, threadID, initial, e.gateNode); err != nil {
			return zero, err
		}
		e.opts.Metrics.walkOutcome("suspended")
		e.emit(emit.Event{ThreadID: threadID, NodeID: e.gateNode, Msg: "walk_suspended"})
		return WalkResult[S]{State: initial, Suspended: true}, nil
	}

	return e.walk(ctx, threadID, initial, e.startNode)
}

// Resume continues a suspended walk for the thread id.
//
// It reloads the latest checkpoint (ErrNoCheckpoint if none exists) and
// re-enters at the recorded pending node (the gate), executing it so that
// it observes whatever the external approver wrote since suspension. If
// routing sends control back into the gate (the decision is still
// pending), the walk suspends again with the same checkpoint shape, which
// makes Resume idempotent while nothing external has changed.
func (e *Engine[S]) Resume(ctx context.Context, threadID string) (WalkResult[S], error) {
	var zero WalkResult[S]
	if threadID == "" {
		return zero, fmt.Errorf("thread id cannot be empty")
	}

	e.mu.Lock()
	err := e.compileLocked()
	e.mu.Unlock()
	if err != nil {
		return zero, err
	}

	release, ok := e.lockThread(threadID)
	if !ok {
		return zero, fmt.Errorf("thread %q: %w", threadID, ErrWalkInProgress)
	}
	defer release()

	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return zero, fmt.Errorf("thread %q: %w", threadID, ErrNoCheckpoint)
		}
		return zero, &StoreError{Op: "load", Err: err}
	}

	// A finished walk's checkpoint points at End; resuming it is a no-op.
	if cp.PendingNode == End {
		return WalkResult[S]{State: cp.State, Suspended: false}, nil
	}

	e.opts.Metrics.walkResumed()
	e.emit(emit.Event{ThreadID: threadID, NodeID: cp.PendingNode, Msg: "walk_resumed"})

	return e.walk(ctx, threadID, cp.State, cp.PendingNode)
}

// walk drives execution from current until End, suspension, or failure.
func (e *Engine[S]) walk(ctx context.Context, threadID string, state S, current string) (WalkResult[S], error) {
	var zero WalkResult[S]

	visited := make(map[string]bool)
	revisits := 0
	step := 0

	for {
		if ctx.Err() != nil {
			return e.fail(ctx, threadID, state, current, ctx.Err())
		}

		e.mu.RLock()
		node, exists := e.nodes[current]
		e.mu.RUnlock()
		if !exists {
			return zero, &ConfigError{Message: "node not found during walk: " + current}
		}

		step++
		visited[current] = true

		began := time.Now()
		result := node.Run(ctx, state)
		e.opts.Metrics.observeNode(current, time.Since(began))

		if result.Err != nil {
			return e.fail(ctx, threadID, state, current, result.Err)
		}

		state = e.reducer(state, result.Delta)

		next, routed, err := e.nextNode(current, state)
		if err != nil {
			return zero, err
		}

		// Transitioning into the gate suspends the walk before the gate
		// executes. The checkpoint records the gate as pending so Resume
		// re-enters exactly there.
		if next == e.gateNode && next != End {
			if err := e.checkpoint(ctx, threadID, state, next); err != nil {
				return zero, err
			}
			e.opts.Metrics.walkOutcome("suspended")
			e.emit(emit.Event{ThreadID: threadID, Step: step, NodeID: current, Msg: "walk_suspended",
				Meta: map[string]interface{}{"pending": next}})
			return WalkResult[S]{State: state, Suspended: true}, nil
		}

		// Only router decisions consume the revisit budget. Fixed edges
		// re-entering visited nodes are the scripted tail of a loop the
		// router already paid for.
		if routed && next != End && visited[next] {
			revisits++
			if e.opts.MaxRevisits > 0 && revisits > e.opts.MaxRevisits {
				e.opts.Metrics.routeOverridden()
				e.emit(emit.Event{ThreadID: threadID, Step: step, NodeID: current, Msg: "route_overridden",
					Meta: map[string]interface{}{"declared": next, "forced": e.overflowNode}})
				next = e.overflowNode
			}
		}

		if err := e.checkpoint(ctx, threadID, state, next); err != nil {
			return zero, err
		}
		e.emit(emit.Event{ThreadID: threadID, Step: step, NodeID: current, Msg: "node_completed",
			Meta: map[string]interface{}{"next": next}})

		if next == End {
			e.opts.Metrics.walkOutcome("completed")
			e.emit(emit.Event{ThreadID: threadID, Step: step, Msg: "walk_completed"})
			return WalkResult[S]{State: state, Suspended: false}, nil
		}

		current = next
	}
}

// nextNode evaluates the outgoing edge of from against the current state.
// The second return value reports whether a router made the choice.
func (e *Engine[S]) nextNode(from string, state S) (string, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if to, ok := e.fixed[from]; ok {
		return to, false, nil
	}
	router, ok := e.routers[from]
	if !ok {
		return "", false, &ConfigError{Message: "node has no outgoing edge: " + from}
	}
	dest := router.Pick(state)
	if !router.allows(dest) {
		return "", false, &ConfigError{Message: fmt.Sprintf("router at %s returned undeclared destination %q", from, dest)}
	}
	return dest, true, nil
}

// fail converts a node-level failure into a terminal fallback state. The
// walk ends normally from the caller's perspective; only when no fallback
// is configured does the failure surface as an error.
func (e *Engine[S]) fail(ctx context.Context, threadID string, state S, nodeID string, cause error) (WalkResult[S], error) {
	if e.opts.Fallback == nil {
		return WalkResult[S]{}, fmt.Errorf("node %s: %w", nodeID, cause)
	}

	state = e.opts.Fallback(state, cause)

	// Best-effort final checkpoint; the walk is over either way. Use a
	// detached context so a caller timeout does not block the write.
	_ = e.checkpoint(context.WithoutCancel(ctx), threadID, state, End)

	e.opts.Metrics.walkOutcome("failed")
	e.emit(emit.Event{ThreadID: threadID, NodeID: nodeID, Msg: "walk_failed",
		Meta: map[string]interface{}{"error": cause.Error()}})
	return WalkResult[S]{State: state, Suspended: false}, nil
}

func (e *Engine[S]) checkpoint(ctx context.Context, threadID string, state S, pending string) error {
	cp := store.Checkpoint[S]{
		ThreadID:    threadID,
		State:       state,
		PendingNode: pending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.Save(ctx, cp); err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	return nil
}

// lockThread claims the thread id for the duration of one walk. Returns
// false when another walk for the same thread is active.
func (e *Engine[S]) lockThread(threadID string) (func(), bool) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	if _, busy := e.active[threadID]; busy {
		return nil, false
	}
	e.active[threadID] = struct{}{}
	return func() {
		e.activeMu.Lock()
		delete(e.active, threadID)
		e.activeMu.Unlock()
	}, true
}

func (e *Engine[S]) emit(event emit.Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}
