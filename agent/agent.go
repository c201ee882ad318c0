package agent

import (
	"context"
	"fmt"

	"github.com/dshills/supportgraph-go/approval"
	"github.com/dshills/supportgraph-go/domain"
	"github.com/dshills/supportgraph-go/graph"
	"github.com/dshills/supportgraph-go/graph/emit"
	"github.com/dshills/supportgraph-go/graph/store"
	"github.com/dshills/supportgraph-go/llm"
	"github.com/dshills/supportgraph-go/order"
	"github.com/dshills/supportgraph-go/policy"
)

const (
	defaultMaxIterations = 5
	defaultPolicyTopK    = 3
)

// Config wires the agent's collaborators.
type Config struct {
	Orders    *order.Service
	Approvals *approval.Service
	Policies  policy.Retriever
	Decider   llm.Decider
	Store     store.Store[State]

	// Emitter and Metrics are optional observability hooks.
	Emitter emit.Emitter
	Metrics *graph.Metrics

	// MaxIterations bounds reasoning passes per walk; zero means the
	// default of 5.
	MaxIterations int

	// PolicyTopK is how many policy snippets to retrieve; zero means 3.
	PolicyTopK int
}

// Result is the outcome of handling one customer message (or resuming a
// suspended one).
type Result struct {
	ThreadID string

	// Response is the text to show the customer. While an approval is
	// pending this is a status message rather than a final answer.
	Response string

	// RequiresApproval is true while the workflow is suspended waiting
	// for a human decision, identified by ApprovalID.
	RequiresApproval bool
	ApprovalID       string

	// State is the full workflow state at the stopping point.
	State State
}

// Agent runs the support workflow.
type Agent struct {
	cfg    Config
	engine *graph.Engine[State]
}

// New builds and validates the workflow graph. Configuration problems
// (missing collaborators, bad wiring) surface here rather than on the
// first request.
func New(cfg Config) (*Agent, error) {
	if cfg.Orders == nil || cfg.Approvals == nil || cfg.Policies == nil || cfg.Decider == nil {
		return nil, fmt.Errorf("orders, approvals, policies, and decider are all required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.PolicyTopK == 0 {
		cfg.PolicyTopK = defaultPolicyTopK
	}

	a := &Agent{cfg: cfg}

	eng := graph.New(Reduce, cfg.Store, cfg.Emitter, graph.Options[State]{
		// The iteration bound in routeAfterValidate is the effective loop
		// ceiling. One reasoning pass crosses at most two router loop-backs
		// (validate back to a fetch node, fetch into retrieval), so this
		// backstop only trips if the bound itself stops advancing.
		MaxRevisits: 2 * cfg.MaxIterations,
		Metrics:     cfg.Metrics,
		Fallback: func(s State, err error) State {
			s.FinalResponse = fallbackAnswer
			return s
		},
	})

	nodes := map[string]graph.NodeFunc[State]{
		nodeClassify:        a.classify,
		nodeFetchOrder:      a.fetchOrder,
		nodeRetrievePolicy:  a.retrievePolicy,
		nodeReason:          a.reason,
		nodeValidate:        a.validate,
		nodeRequestApproval: a.requestApproval,
		nodeCheckApproval:   a.checkApproval,
		nodeExecute:         a.execute,
		nodeRespond:         a.respond,
	}
	for id, fn := range nodes {
		if err := eng.Add(id, fn); err != nil {
			return nil, err
		}
	}

	wiring := []struct{ from, to string }{
		{nodeClassify, nodeFetchOrder},
		{nodeRetrievePolicy, nodeReason},
		{nodeReason, nodeValidate},
		{nodeRequestApproval, nodeCheckApproval},
		{nodeExecute, nodeRespond},
		{nodeRespond, graph.End},
	}
	for _, edge := range wiring {
		if err := eng.Connect(edge.from, edge.to); err != nil {
			return nil, err
		}
	}

	if err := eng.Route(nodeFetchOrder, graph.Router[State]{
		Targets: []string{nodeRetrievePolicy, nodeReason},
		Pick:    routeAfterFetch,
	}); err != nil {
		return nil, err
	}
	if err := eng.Route(nodeValidate, graph.Router[State]{
		Targets: []string{nodeFetchOrder, nodeRetrievePolicy, nodeRequestApproval, nodeExecute, nodeRespond},
		Pick:    a.routeAfterValidate,
	}); err != nil {
		return nil, err
	}
	if err := eng.Route(nodeCheckApproval, graph.Router[State]{
		Targets: []string{nodeCheckApproval, nodeExecute, nodeRespond},
		Pick:    routeAfterCheck,
	}); err != nil {
		return nil, err
	}

	if err := eng.StartAt(nodeClassify); err != nil {
		return nil, err
	}
	if err := eng.SuspendBefore(nodeCheckApproval); err != nil {
		return nil, err
	}
	if err := eng.OverflowTo(nodeRespond); err != nil {
		return nil, err
	}
	if err := eng.Compile(); err != nil {
		return nil, err
	}

	a.engine = eng
	return a, nil
}

// routeAfterFetch continues to policy retrieval only when an order was
// found; otherwise the reasoner works from the message alone.
func routeAfterFetch(s State) string {
	if s.NextStep == domain.StepFetchPolicy {
		return nodeRetrievePolicy
	}
	return nodeReason
}

// routeAfterValidate picks between another data-gathering pass, the
// approval path, and the final response.
func (a *Agent) routeAfterValidate(s State) string {
	// Iteration bound: stop gathering and answer with what we have.
	if s.IterationCount > a.cfg.MaxIterations {
		return nodeRespond
	}

	switch s.NextStep {
	case domain.StepFetchOrder:
		return nodeFetchOrder
	case domain.StepFetchPolicy:
		return nodeRetrievePolicy
	}

	if s.Decision != nil && s.Decision.Action != domain.ActionNone {
		switch s.ApprovalStatus {
		case domain.ApprovalApproved:
			return nodeExecute
		case domain.ApprovalRejected:
			return nodeRespond
		}
		return nodeRequestApproval
	}
	return nodeRespond
}

// routeAfterCheck acts on the human decision. A still-pending approval
// routes back into the gate, which suspends the walk again; that makes
// resuming an undecided approval a no-op.
func routeAfterCheck(s State) string {
	switch s.ApprovalStatus {
	case domain.ApprovalApproved:
		return nodeExecute
	case domain.ApprovalRejected:
		return nodeRespond
	}
	if s.ApprovalID == "" {
		return nodeRespond
	}
	return nodeCheckApproval
}

// Start handles a new customer message on the thread. If the workflow
// proposes a write action, the result reports the pending approval and the
// walk stays suspended until Resume.
func (a *Agent) Start(ctx context.Context, threadID, message string, history []domain.Message) (Result, error) {
	initial := State{
		ThreadID:    threadID,
		UserMessage: message,
		History:     history,
	}

	res, err := a.engine.Start(ctx, threadID, initial)
	if err != nil {
		return Result{}, err
	}
	return a.toResult(threadID, res), nil
}

// Resume continues a suspended thread after an approval decision. Resuming
// while the approval is still pending suspends again without side effects.
func (a *Agent) Resume(ctx context.Context, threadID string) (Result, error) {
	res, err := a.engine.Resume(ctx, threadID)
	if err != nil {
		return Result{}, err
	}
	return a.toResult(threadID, res), nil
}

func (a *Agent) toResult(threadID string, res graph.WalkResult[State]) Result {
	out := Result{
		ThreadID: threadID,
		State:    res.State,
	}
	if res.Suspended {
		out.RequiresApproval = true
		out.ApprovalID = res.State.ApprovalID
		out.Response = pendingMessage(res.State)
		return out
	}

	out.Response = res.State.FinalResponse
	if out.Response == "" {
		out.Response = fallbackAnswer
	}
	return out
}

// pendingMessage describes the suspended state to the customer.
func pendingMessage(s State) string {
	action := "complete this request"
	if s.Decision != nil {
		switch s.Decision.Action {
		case domain.ActionCancelOrder:
			action = fmt.Sprintf("cancel order %s", s.Decision.OrderID)
		case domain.ActionRefundOrder:
			action = fmt.Sprintf("refund order %s", s.Decision.OrderID)
		}
	}
	return fmt.Sprintf("Your request to %s is awaiting review by a support agent (reference: %s).", action, s.ApprovalID)
}
