// Package llm turns a customer conversation into a structured support
// decision. Providers implement the Completer interface; StructuredDecider
// wraps any provider with prompt construction, JSON parsing, and retries.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/supportgraph-go/domain"
)

// SystemPrompt instructs the model to answer in the decision schema. The
// model proposes actions; it never executes them.
const SystemPrompt = `You are an AI customer support agent.

Rules:
- You must respond ONLY in valid JSON
- You may NEVER execute actions
- You may ONLY propose actions
- If information is missing, ask for tools

Output schema:
{
  "analysis": "string",
  "final_answer": "string",
  "action": "NONE | CANCEL_ORDER | REFUND_ORDER",
  "order_id": "string | null",
  "confidence": number,
  "requires_human_approval": boolean,
  "next_step": "NONE | FETCH_ORDER | FETCH_POLICY"
}

Do NOT add extra fields.`

// Request is the input for one decision.
type Request struct {
	// Message is the current customer message.
	Message string

	// History is the prior conversation, oldest first.
	History []domain.Message

	// Order is the fetched order, when one has been identified.
	Order *domain.Order

	// PolicyContext is retrieved policy text, empty when none was found.
	PolicyContext string
}

// BuildMessages assembles the conversation to send to a provider: the
// history followed by the current message with its context block.
func BuildMessages(req Request) []domain.Message {
	messages := make([]domain.Message, 0, len(req.History)+1)
	messages = append(messages, req.History...)

	var parts []string
	if req.Order != nil {
		encoded, err := json.Marshal(req.Order)
		if err == nil {
			parts = append(parts, "Order Data: "+string(encoded))
		}
	}
	if req.PolicyContext != "" {
		parts = append(parts, "Policy Context: "+req.PolicyContext)
	}
	context := "No additional context available."
	if len(parts) > 0 {
		context = strings.Join(parts, "\n\n")
	}

	messages = append(messages, domain.Message{
		Role:    domain.RoleUser,
		Content: fmt.Sprintf("Context:\n%s\n\nUser Message: %s", context, req.Message),
	})
	return messages
}

// decisionWire is the JSON shape providers answer with.
type decisionWire struct {
	Analysis         string  `json:"analysis"`
	FinalAnswer      string  `json:"final_answer"`
	Action           string  `json:"action"`
	OrderID          string  `json:"order_id"`
	Confidence       float64 `json:"confidence"`
	RequiresApproval bool    `json:"requires_human_approval"`
	NextStep         string  `json:"next_step"`
}

// ParseDecision decodes a provider response into a decision and the data
// the model still wants fetched. Providers occasionally wrap the JSON in
// prose; the parser falls back to the outermost object in that case.
func ParseDecision(raw string) (domain.Decision, domain.NextStep, error) {
	var wire decisionWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		extracted, ok := extractJSON(raw)
		if !ok {
			return domain.Decision{}, domain.StepNone, fmt.Errorf("response is not valid JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(extracted), &wire); err != nil {
			return domain.Decision{}, domain.StepNone, fmt.Errorf("response is not valid JSON: %w", err)
		}
	}

	decision := domain.Decision{
		Analysis:         wire.Analysis,
		FinalAnswer:      wire.FinalAnswer,
		Action:           domain.Action(wire.Action),
		OrderID:          wire.OrderID,
		Confidence:       wire.Confidence,
		RequiresApproval: wire.RequiresApproval,
	}
	if decision.Action == "" {
		decision.Action = domain.ActionNone
	}

	next := domain.NextStep(wire.NextStep)
	switch next {
	case domain.StepFetchOrder, domain.StepFetchPolicy:
	default:
		next = domain.StepNone
	}
	return decision, next, nil
}

// extractJSON returns the substring spanning the outermost braces.
func extractJSON(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}
