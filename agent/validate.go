package agent

import (
	"fmt"

	"github.com/dshills/supportgraph-go/domain"
)

// fallbackAnswer is the safe response used whenever a decision cannot be
// produced or fails validation.
const fallbackAnswer = "I apologize, but I couldn't process your request."

// validationFallbackAnswer is used when a decision existed but violated a
// safety rule.
const validationFallbackAnswer = "I apologize, but I encountered an error processing your request. " +
	"Please try rephrasing your question or contact support for assistance."

// validateDecision checks the safety rules on a reasoning output:
//
//   - a proposed action always requires human approval
//   - a proposed action always names an order
//   - confidence is within [0, 1]
//
// The returned error describes the first violated rule.
func validateDecision(d domain.Decision) error {
	if !d.Action.Valid() {
		return fmt.Errorf("unknown action %q", d.Action)
	}
	if d.Action != domain.ActionNone && !d.RequiresApproval {
		return fmt.Errorf("requires_human_approval must be true when action is %s", d.Action)
	}
	if d.Action != domain.ActionNone && d.OrderID == "" {
		return fmt.Errorf("order_id must be provided when action is %s", d.Action)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0, 1]", d.Confidence)
	}
	return nil
}

// fallbackDecision is the inert decision substituted when validation or
// reasoning fails. It proposes nothing, so the walk can only route to the
// final response.
func fallbackDecision(reason string) domain.Decision {
	return domain.Decision{
		Analysis:         "Validation error occurred: " + reason,
		FinalAnswer:      validationFallbackAnswer,
		Action:           domain.ActionNone,
		Confidence:       0,
		RequiresApproval: false,
	}
}
