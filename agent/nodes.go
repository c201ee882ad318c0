package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/supportgraph-go/domain"
	"github.com/dshills/supportgraph-go/graph"
	"github.com/dshills/supportgraph-go/llm"
)

// Node IDs. The gate sits between requesting an approval and acting on it;
// the walk suspends whenever control transitions into it.
const (
	nodeClassify        = "classify_intent"
	nodeFetchOrder      = "fetch_order"
	nodeRetrievePolicy  = "retrieve_policy"
	nodeReason          = "reason"
	nodeValidate        = "validate_decision"
	nodeRequestApproval = "request_approval"
	nodeCheckApproval   = "check_approval"
	nodeExecute         = "execute_action"
	nodeRespond         = "respond"
)

// classify starts a reasoning pass: it bumps the iteration counter and
// sends the walk off to gather order data.
func (a *Agent) classify(ctx context.Context, s State) graph.NodeResult[State] {
	return graph.NodeResult[State]{Delta: State{
		IterationCount: s.IterationCount + 1,
		NextStep:       domain.StepFetchOrder,
	}}
}

// fetchOrder looks up the order referenced in the customer message. A
// message with no recognizable order reference is not an error; the walk
// continues without order context.
func (a *Agent) fetchOrder(ctx context.Context, s State) graph.NodeResult[State] {
	orderID := extractOrderID(s.UserMessage)
	if orderID == "" {
		return graph.NodeResult[State]{Delta: State{NextStep: domain.StepNone}}
	}

	ord, err := a.cfg.Orders.Get(ctx, orderID)
	if err != nil {
		// Unknown order IDs degrade to no context; the reasoner will ask
		// the customer to double-check the number.
		return graph.NodeResult[State]{Delta: State{NextStep: domain.StepNone}}
	}

	return graph.NodeResult[State]{Delta: State{
		Order:    &ord,
		NextStep: domain.StepFetchPolicy,
	}}
}

// retrievePolicy fetches policy snippets relevant to the message and the
// order's status, formatted for the reasoning prompt.
func (a *Agent) retrievePolicy(ctx context.Context, s State) graph.NodeResult[State] {
	query := s.UserMessage
	if s.Order != nil {
		query += fmt.Sprintf(" order status: %s", s.Order.Status)
	}

	snippets, err := a.cfg.Policies.Retrieve(ctx, query, a.cfg.PolicyTopK)
	if err != nil {
		// Retrieval is advisory. Reason without policy context rather
		// than failing the walk.
		return graph.NodeResult[State]{Delta: State{NextStep: domain.StepNone}}
	}

	parts := make([]string, 0, len(snippets))
	for i, snippet := range snippets {
		parts = append(parts, fmt.Sprintf("Policy %d (score: %.2f):\n%s", i+1, snippet.Score, snippet.Text))
	}

	return graph.NodeResult[State]{Delta: State{
		PolicyContext: strings.Join(parts, "\n\n"),
		NextStep:      domain.StepNone,
	}}
}

// reason asks the model for a structured decision. Provider failure after
// retries degrades to the inert fallback decision instead of failing the
// walk.
func (a *Agent) reason(ctx context.Context, s State) graph.NodeResult[State] {
	req := llm.Request{
		Message:       s.UserMessage,
		History:       s.History,
		Order:         s.Order,
		PolicyContext: s.PolicyContext,
	}

	decision, next, err := a.cfg.Decider.Decide(ctx, req)
	if err != nil {
		fb := fallbackDecision(err.Error())
		return graph.NodeResult[State]{Delta: State{
			Decision:       &fb,
			Confidence:     fb.Confidence,
			IterationCount: s.IterationCount + 1,
			NextStep:       domain.StepNone,
		}}
	}

	return graph.NodeResult[State]{Delta: State{
		Decision:       &decision,
		Confidence:     decision.Confidence,
		IterationCount: s.IterationCount + 1,
		NextStep:       next,
	}}
}

// validate enforces the decision safety rules, substituting the fallback
// decision when a rule is violated.
func (a *Agent) validate(ctx context.Context, s State) graph.NodeResult[State] {
	if s.Decision == nil {
		fb := fallbackDecision("no decision available")
		return graph.NodeResult[State]{Delta: State{
			Decision:   &fb,
			Confidence: 0,
			NextStep:   domain.StepNone,
		}}
	}

	if err := validateDecision(*s.Decision); err != nil {
		fb := fallbackDecision(err.Error())
		return graph.NodeResult[State]{Delta: State{
			Decision:   &fb,
			Confidence: 0,
			NextStep:   domain.StepNone,
		}}
	}

	return graph.NodeResult[State]{Delta: State{Confidence: s.Decision.Confidence}}
}

// requestApproval creates the approval record for a proposed action. If
// state already carries an approval ID the record exists from before a
// suspension; its current status is loaded instead of creating a
// duplicate, which keeps repeated resumes idempotent.
func (a *Agent) requestApproval(ctx context.Context, s State) graph.NodeResult[State] {
	if s.Decision == nil || s.Decision.Action == domain.ActionNone {
		return graph.NodeResult[State]{}
	}

	if s.ApprovalID != "" {
		rec, err := a.cfg.Approvals.Get(ctx, s.ApprovalID)
		if err != nil {
			return graph.NodeResult[State]{Err: fmt.Errorf("load approval %s: %w", s.ApprovalID, err)}
		}
		return graph.NodeResult[State]{Delta: State{
			ApprovalID:     rec.ID,
			ApprovalStatus: rec.Status,
		}}
	}

	rec, err := a.cfg.Approvals.Request(ctx, s.ThreadID, s.Decision.OrderID, s.Decision.Action)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("create approval: %w", err)}
	}
	return graph.NodeResult[State]{Delta: State{
		ApprovalID:     rec.ID,
		ApprovalStatus: rec.Status,
	}}
}

// checkApproval reads the current status of the pending approval. It is
// the suspension gate: the walk stops before it runs and only a resume
// executes it, so it always observes whatever the human decided since.
func (a *Agent) checkApproval(ctx context.Context, s State) graph.NodeResult[State] {
	if s.ApprovalID == "" {
		return graph.NodeResult[State]{}
	}
	rec, err := a.cfg.Approvals.Get(ctx, s.ApprovalID)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("load approval %s: %w", s.ApprovalID, err)}
	}
	return graph.NodeResult[State]{Delta: State{ApprovalStatus: rec.Status}}
}

// execute runs the approved action. Business failures ride in the result;
// only infrastructure errors fail the node.
func (a *Agent) execute(ctx context.Context, s State) graph.NodeResult[State] {
	if s.Decision == nil {
		return graph.NodeResult[State]{}
	}
	result := a.cfg.Orders.Execute(ctx, s.Decision.Action, s.Decision.OrderID)
	return graph.NodeResult[State]{Delta: State{Execution: &result}}
}

// respond formats the final answer and folds this exchange into the
// conversation history.
func (a *Agent) respond(ctx context.Context, s State) graph.NodeResult[State] {
	response := fallbackAnswer
	if s.Decision != nil && s.Decision.FinalAnswer != "" {
		response = s.Decision.FinalAnswer
	}

	if s.Execution != nil {
		if s.Execution.Success {
			msg := s.Execution.Message
			if msg == "" {
				msg = "Action completed successfully."
			}
			response += "\n\n" + msg
		} else {
			errMsg := s.Execution.Error
			if errMsg == "" {
				errMsg = "Action could not be completed."
			}
			response += "\n\nNote: " + errMsg
		}
	}

	history := make([]domain.Message, 0, len(s.History)+2)
	history = append(history, s.History...)
	history = append(history,
		domain.Message{Role: domain.RoleUser, Content: s.UserMessage},
		domain.Message{Role: domain.RoleAssistant, Content: response},
	)

	return graph.NodeResult[State]{Delta: State{
		FinalResponse: response,
		History:       history,
	}}
}

// extractOrderID pulls an order reference out of free text: a word that
// starts with ORD- or a #-prefixed number.
func extractOrderID(message string) string {
	for _, word := range strings.Fields(message) {
		cleaned := strings.Trim(word, ".,!?;:()\"'")
		if strings.HasPrefix(cleaned, "#") && len(cleaned) > 1 {
			return strings.TrimPrefix(cleaned, "#")
		}
		if strings.HasPrefix(cleaned, "ORD-") && len(cleaned) > len("ORD-") {
			return cleaned
		}
	}
	return ""
}
