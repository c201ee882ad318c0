package graph

// End is the pseudo-destination that terminates a walk. It may be used as
// the target of a fixed edge or returned by a router that declares it.
const End = "__end__"

// Router picks the next node at a branch point by inspecting state.
//
// Routers are pure functions: no side effects, no external calls. Every
// destination a router can return must be declared in Targets; the target
// set is validated against the node registry when the graph is compiled,
// and a Pick result outside the declared set aborts the walk with a
// ConfigError rather than falling back silently.
type Router[S any] struct {
	// Targets is the declared allow-set of destinations. Each entry must
	// be a registered node ID or End.
	Targets []string

	// Pick returns the destination for the given state. The result must be
	// one of Targets.
	Pick func(state S) string
}

// allows reports whether dest is in the declared target set.
func (r Router[S]) allows(dest string) bool {
	for _, t := range r.Targets {
		if t == dest {
			return true
		}
	}
	return false
}
