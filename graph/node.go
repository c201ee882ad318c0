package graph

import "context"

// Node is a processing step in the workflow graph.
//
// A node receives the current state, performs its work (which may include
// calls to external collaborators), and returns a NodeResult carrying a
// partial state update. Nodes never decide routing themselves: the next hop
// is determined by the edge or router declared for the node at graph
// construction time.
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	// Run executes the node's logic with the given context and state.
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is the output of a node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node.
	// It is merged into the current state by the engine's reducer;
	// zero-valued fields leave the corresponding state fields untouched.
	Delta S

	// Err is a node-level failure. The engine does not propagate it to the
	// caller: it converts the walk into a terminal fallback state (see
	// Options.Fallback) so that every walk ends with a usable response.
	Err error
}

// NodeFunc adapts a plain function to the Node interface.
//
// Example:
//
//	classify := graph.NodeFunc[State](func(ctx context.Context, s State) graph.NodeResult[State] {
//	    return graph.NodeResult[State]{Delta: State{NextStep: "FETCH_ORDER"}}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements the Node interface for NodeFunc.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// Reducer merges a partial state update into the accumulated state.
//
// Reducers must be deterministic and side-effect free. The contract is
// per-key last-write-wins: a field present (non-zero) in delta replaces the
// previous value; absent fields are left untouched. Accumulating fields
// (e.g. conversation history) are the responsibility of the node that
// produces them, not of the reducer.
type Reducer[S any] func(prev, delta S) S
