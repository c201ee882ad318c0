// Package domain holds the shared domain model for the support agent:
// orders, proposed actions, agent decisions, and the enumerations used
// for workflow routing and approval tracking.
package domain

import "time"

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

// Order lifecycle states.
const (
	OrderPlaced    OrderStatus = "PLACED"
	OrderShipped   OrderStatus = "SHIPPED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

// Action is a state-changing operation the agent may propose.
// Actions are never executed directly by the reasoning step; they require
// human approval before the executor runs them.
type Action string

// Supported actions.
const (
	ActionNone        Action = "NONE"
	ActionCancelOrder Action = "CANCEL_ORDER"
	ActionRefundOrder Action = "REFUND_ORDER"
)

// Valid reports whether a is one of the known action values.
func (a Action) Valid() bool {
	switch a {
	case ActionNone, ActionCancelOrder, ActionRefundOrder:
		return true
	}
	return false
}

// ApprovalStatus is the state of a human approval request.
type ApprovalStatus string

// Approval states. PENDING transitions to APPROVED or REJECTED exactly once.
const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Decided reports whether the status is terminal.
func (s ApprovalStatus) Decided() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// NextStep is the routing hint a node leaves in state for the routers.
// The zero value means "not set"; StepNone is an explicit "no more data
// needed" signal and is distinct from unset.
type NextStep string

// Routing hints.
const (
	StepNone        NextStep = "NONE"
	StepFetchOrder  NextStep = "FETCH_ORDER"
	StepFetchPolicy NextStep = "FETCH_POLICY"
)

// Order is the business record the agent reads and, with approval, mutates.
type Order struct {
	ID               string      `json:"order_id"`
	Status           OrderStatus `json:"status"`
	ExpectedDelivery time.Time   `json:"expected_delivery_date"`
	Amount           float64     `json:"amount"`
	Refundable       bool        `json:"refundable"`
	Description      string      `json:"description,omitempty"`
}

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Decision is the structured output of the reasoning step.
//
// Invariant (enforced by agent validation, not here): when Action is not
// NONE, RequiresApproval must be true and OrderID must be non-empty.
type Decision struct {
	Analysis         string  `json:"analysis"`
	FinalAnswer      string  `json:"final_answer"`
	Action           Action  `json:"action"`
	OrderID          string  `json:"order_id,omitempty"`
	Confidence       float64 `json:"confidence"`
	RequiresApproval bool    `json:"requires_human_approval"`
}

// ExecutionResult is the outcome of running a proposed action.
// Failures are carried in Error rather than as a Go error: an action that
// cannot be performed is a normal business outcome, not a walk failure.
type ExecutionResult struct {
	Success  bool    `json:"success"`
	Message  string  `json:"message,omitempty"`
	Error    string  `json:"error,omitempty"`
	OrderID  string  `json:"order_id,omitempty"`
	Status   string  `json:"status,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	RefundID string  `json:"refund_id,omitempty"`
}
