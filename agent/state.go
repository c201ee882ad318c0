// Package agent assembles the customer support workflow: classify the
// request, gather order and policy context, reason over it, validate the
// proposed decision, gate write actions behind human approval, execute,
// and respond.
package agent

import "github.com/dshills/supportgraph-go/domain"

// State is the workflow state shared by every node. Nodes return partial
// States (deltas); Reduce folds them into the accumulated value.
type State struct {
	// ThreadID identifies the conversation. It is carried in state so the
	// approval step can bind an approval back to the suspended thread.
	ThreadID string `json:"thread_id,omitempty"`

	// UserMessage is the customer message being handled.
	UserMessage string `json:"user_message"`

	// History is the prior conversation, oldest first. The respond step
	// rebuilds it with this exchange appended.
	History []domain.Message `json:"conversation_history,omitempty"`

	// Order is the fetched order, if one was identified.
	Order *domain.Order `json:"order_data,omitempty"`

	// PolicyContext is the formatted policy snippets for the reasoner.
	PolicyContext string `json:"policy_context,omitempty"`

	// Decision is the validated output of the reasoning step.
	Decision *domain.Decision `json:"agent_decision,omitempty"`

	// ApprovalID and ApprovalStatus track the pending human approval.
	ApprovalID     string                `json:"approval_id,omitempty"`
	ApprovalStatus domain.ApprovalStatus `json:"approval_status,omitempty"`

	// Execution is the outcome of the approved write action.
	Execution *domain.ExecutionResult `json:"execution_result,omitempty"`

	// Confidence mirrors Decision.Confidence for routing.
	Confidence float64 `json:"confidence"`

	// IterationCount counts reasoning passes; routing forces a final
	// response once it exceeds the iteration bound.
	IterationCount int `json:"iteration_count"`

	// NextStep is the data-gathering hint left for the routers.
	NextStep domain.NextStep `json:"next_step,omitempty"`

	// FinalResponse is the answer returned to the customer.
	FinalResponse string `json:"final_response,omitempty"`
}

// Reduce merges a node's delta into the accumulated state. Zero-valued
// delta fields leave the previous value in place; set fields win.
// IterationCount only moves forward, and History is replaced wholesale
// when a delta carries one.
func Reduce(prev, delta State) State {
	if delta.ThreadID != "" {
		prev.ThreadID = delta.ThreadID
	}
	if delta.UserMessage != "" {
		prev.UserMessage = delta.UserMessage
	}
	if delta.History != nil {
		prev.History = delta.History
	}
	if delta.Order != nil {
		prev.Order = delta.Order
	}
	if delta.PolicyContext != "" {
		prev.PolicyContext = delta.PolicyContext
	}
	if delta.Decision != nil {
		prev.Decision = delta.Decision
		prev.Confidence = delta.Confidence
	} else if delta.Confidence != 0 {
		prev.Confidence = delta.Confidence
	}
	if delta.ApprovalID != "" {
		prev.ApprovalID = delta.ApprovalID
	}
	if delta.ApprovalStatus != "" {
		prev.ApprovalStatus = delta.ApprovalStatus
	}
	if delta.Execution != nil {
		prev.Execution = delta.Execution
	}
	if delta.IterationCount > prev.IterationCount {
		prev.IterationCount = delta.IterationCount
	}
	if delta.NextStep != "" {
		prev.NextStep = delta.NextStep
	}
	if delta.FinalResponse != "" {
		prev.FinalResponse = delta.FinalResponse
	}
	return prev
}
