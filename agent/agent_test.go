package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/supportgraph-go/approval"
	"github.com/dshills/supportgraph-go/domain"
	"github.com/dshills/supportgraph-go/graph"
	"github.com/dshills/supportgraph-go/graph/store"
	"github.com/dshills/supportgraph-go/llm"
	"github.com/dshills/supportgraph-go/order"
	"github.com/dshills/supportgraph-go/policy"
)

type fixture struct {
	agent     *Agent
	orders    *order.Service
	approvals *approval.Service
}

func newFixture(t *testing.T, decider llm.Decider) *fixture {
	t.Helper()

	orders := order.NewService(order.NewSeededRepository())
	approvals := approval.NewService(approval.NewMemStore(), approval.NewMemThreadIndex())

	a, err := New(Config{
		Orders:    orders,
		Approvals: approvals,
		Policies:  policy.NewSeededRetriever(),
		Decider:   decider,
		Store:     store.NewMemStore[State](),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{agent: a, orders: orders, approvals: approvals}
}

func TestAgentReadOnlyQuestion(t *testing.T) {
	ctx := context.Background()
	decider := llm.NewMock(llm.MockOutcome{
		Decision: domain.Decision{
			Analysis:    "Customer asks about delivery time for ORD-002.",
			FinalAnswer: "Your order ORD-002 shipped and should arrive within 2 days.",
			Action:      domain.ActionNone,
			Confidence:  0.95,
		},
		NextStep: domain.StepNone,
	})
	fx := newFixture(t, decider)

	res, err := fx.agent.Start(ctx, "conv-1", "When will my order ORD-002 arrive?", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.RequiresApproval {
		t.Error("read-only question should not require approval")
	}
	if !strings.Contains(res.Response, "within 2 days") {
		t.Errorf("response = %q", res.Response)
	}

	t.Run("order and policy context reached the model", func(t *testing.T) {
		if len(decider.Requests) != 1 {
			t.Fatalf("decider called %d times, want 1", len(decider.Requests))
		}
		req := decider.Requests[0]
		if req.Order == nil || req.Order.ID != "ORD-002" {
			t.Errorf("order context = %+v", req.Order)
		}
		if !strings.Contains(req.PolicyContext, "Policy 1 (score:") {
			t.Errorf("policy context = %q", req.PolicyContext)
		}
	})

	t.Run("history rebuilt with this exchange", func(t *testing.T) {
		hist := res.State.History
		if len(hist) != 2 {
			t.Fatalf("history length = %d, want 2", len(hist))
		}
		if hist[0].Role != domain.RoleUser || hist[1].Role != domain.RoleAssistant {
			t.Errorf("history roles = %s, %s", hist[0].Role, hist[1].Role)
		}
	})
}

func TestAgentCancelWithApproval(t *testing.T) {
	ctx := context.Background()
	decider := llm.NewMock(llm.MockOutcome{
		Decision: domain.Decision{
			Analysis:         "Customer wants ORD-001 cancelled; it is still PLACED.",
			FinalAnswer:      "I've requested the cancellation of order ORD-001.",
			Action:           domain.ActionCancelOrder,
			OrderID:          "ORD-001",
			Confidence:       0.9,
			RequiresApproval: true,
		},
		NextStep: domain.StepNone,
	})
	fx := newFixture(t, decider)

	res, err := fx.agent.Start(ctx, "conv-2", "Please cancel order ORD-001", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	t.Run("suspends pending approval", func(t *testing.T) {
		if !res.RequiresApproval {
			t.Fatal("expected approval to be required")
		}
		if !strings.HasPrefix(res.ApprovalID, "APR-") {
			t.Errorf("approval id = %q", res.ApprovalID)
		}
		if !strings.Contains(res.Response, "awaiting review") {
			t.Errorf("response = %q", res.Response)
		}
	})

	t.Run("no action before the decision", func(t *testing.T) {
		ord, err := fx.orders.Get(ctx, "ORD-001")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ord.Status != domain.OrderPlaced {
			t.Errorf("order status = %s before approval, want PLACED", ord.Status)
		}
	})

	t.Run("approval record bound to thread", func(t *testing.T) {
		rec, err := fx.approvals.Get(ctx, res.ApprovalID)
		if err != nil {
			t.Fatalf("Get approval: %v", err)
		}
		if rec.OrderID != "ORD-001" || rec.Action != domain.ActionCancelOrder {
			t.Errorf("record = %+v", rec)
		}
		threadID, err := fx.approvals.ThreadFor(ctx, res.ApprovalID)
		if err != nil || threadID != "conv-2" {
			t.Errorf("thread = %q, err = %v", threadID, err)
		}
	})

	if _, err := fx.approvals.Decide(ctx, res.ApprovalID, domain.ApprovalApproved); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	resumed, err := fx.agent.Resume(ctx, "conv-2")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}

	t.Run("executes after approval", func(t *testing.T) {
		if resumed.RequiresApproval {
			t.Fatal("walk still suspended after approval")
		}
		if !strings.Contains(resumed.Response, "has been cancelled") {
			t.Errorf("response = %q", resumed.Response)
		}
		ord, err := fx.orders.Get(ctx, "ORD-001")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ord.Status != domain.OrderCancelled {
			t.Errorf("order status = %s, want CANCELLED", ord.Status)
		}
		if resumed.State.Execution == nil || !resumed.State.Execution.Success {
			t.Errorf("execution = %+v", resumed.State.Execution)
		}
	})

	t.Run("resume after completion is a no-op", func(t *testing.T) {
		again, err := fx.agent.Resume(ctx, "conv-2")
		if err != nil {
			t.Fatalf("Resume: %v", err)
		}
		if again.RequiresApproval {
			t.Error("completed walk reported as suspended")
		}
		if again.Response != resumed.Response {
			t.Errorf("response changed on repeat resume: %q", again.Response)
		}
	})
}

func TestAgentRejectedApproval(t *testing.T) {
	ctx := context.Background()
	decider := llm.NewMock(llm.MockOutcome{
		Decision: domain.Decision{
			Analysis:         "Customer wants a refund for ORD-002.",
			FinalAnswer:      "I've requested a refund for order ORD-002.",
			Action:           domain.ActionRefundOrder,
			OrderID:          "ORD-002",
			Confidence:       0.85,
			RequiresApproval: true,
		},
	})
	fx := newFixture(t, decider)

	res, err := fx.agent.Start(ctx, "conv-3", "I want a refund for ORD-002", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !res.RequiresApproval {
		t.Fatal("expected approval to be required")
	}

	if _, err := fx.approvals.Decide(ctx, res.ApprovalID, domain.ApprovalRejected); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	resumed, err := fx.agent.Resume(ctx, "conv-3")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.RequiresApproval {
		t.Fatal("walk still suspended after rejection")
	}
	if resumed.State.Execution != nil {
		t.Errorf("rejected action was executed: %+v", resumed.State.Execution)
	}

	ord, err := fx.orders.Get(ctx, "ORD-002")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ord.Status != domain.OrderShipped {
		t.Errorf("order status = %s, want SHIPPED untouched", ord.Status)
	}
}

func TestAgentResumeWhilePending(t *testing.T) {
	ctx := context.Background()
	decider := llm.NewMock(llm.MockOutcome{
		Decision: domain.Decision{
			FinalAnswer:      "I've requested the cancellation of order ORD-001.",
			Action:           domain.ActionCancelOrder,
			OrderID:          "ORD-001",
			Confidence:       0.9,
			RequiresApproval: true,
		},
	})
	fx := newFixture(t, decider)

	res, err := fx.agent.Start(ctx, "conv-4", "Cancel ORD-001 now", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !res.RequiresApproval {
		t.Fatal("expected approval to be required")
	}

	// Two premature resumes: both suspend again with the same approval.
	for i := 0; i < 2; i++ {
		resumed, err := fx.agent.Resume(ctx, "conv-4")
		if err != nil {
			t.Fatalf("Resume %d: %v", i, err)
		}
		if !resumed.RequiresApproval {
			t.Fatalf("resume %d completed while approval still pending", i)
		}
		if resumed.ApprovalID != res.ApprovalID {
			t.Errorf("resume %d approval id = %q, want %q", i, resumed.ApprovalID, res.ApprovalID)
		}
	}

	rec, err := fx.approvals.Get(ctx, res.ApprovalID)
	if err != nil {
		t.Fatalf("Get approval: %v", err)
	}
	if rec.Status != domain.ApprovalPending {
		t.Errorf("approval status = %s, want PENDING", rec.Status)
	}

	ord, _ := fx.orders.Get(ctx, "ORD-001")
	if ord.Status != domain.OrderPlaced {
		t.Errorf("order status = %s, want PLACED", ord.Status)
	}
}

func TestAgentValidationFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("action without approval flag", func(t *testing.T) {
		decider := llm.NewMock(llm.MockOutcome{
			Decision: domain.Decision{
				FinalAnswer:      "Cancelling now.",
				Action:           domain.ActionCancelOrder,
				OrderID:          "ORD-001",
				Confidence:       0.9,
				RequiresApproval: false,
			},
		})
		fx := newFixture(t, decider)

		res, err := fx.agent.Start(ctx, "conv-5", "Cancel ORD-001", nil)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if res.RequiresApproval {
			t.Error("invalid decision should not reach the approval gate")
		}
		if !strings.Contains(res.Response, "I apologize") {
			t.Errorf("response = %q, want fallback", res.Response)
		}
		ord, _ := fx.orders.Get(ctx, "ORD-001")
		if ord.Status != domain.OrderPlaced {
			t.Errorf("order status = %s, want PLACED untouched", ord.Status)
		}
	})

	t.Run("action without order id", func(t *testing.T) {
		decider := llm.NewMock(llm.MockOutcome{
			Decision: domain.Decision{
				FinalAnswer:      "Refunding.",
				Action:           domain.ActionRefundOrder,
				Confidence:       0.9,
				RequiresApproval: true,
			},
		})
		fx := newFixture(t, decider)

		res, err := fx.agent.Start(ctx, "conv-6", "Refund my order", nil)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if res.RequiresApproval {
			t.Error("invalid decision should not reach the approval gate")
		}
	})

	t.Run("confidence out of range", func(t *testing.T) {
		decider := llm.NewMock(llm.MockOutcome{
			Decision: domain.Decision{FinalAnswer: "Sure.", Action: domain.ActionNone, Confidence: 1.7},
		})
		fx := newFixture(t, decider)

		res, err := fx.agent.Start(ctx, "conv-7", "Hello", nil)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if !strings.Contains(res.Response, "I apologize") {
			t.Errorf("response = %q, want fallback", res.Response)
		}
	})

	t.Run("missing decision uses the validation fallback text", func(t *testing.T) {
		fx := newFixture(t, llm.NewMock(llm.MockOutcome{}))

		out := fx.agent.validate(ctx, State{})
		if out.Err != nil {
			t.Fatalf("validate: %v", out.Err)
		}
		if out.Delta.Decision == nil {
			t.Fatal("expected a substituted fallback decision")
		}
		if out.Delta.Decision.FinalAnswer != validationFallbackAnswer {
			t.Errorf("fallback answer = %q, want %q", out.Delta.Decision.FinalAnswer, validationFallbackAnswer)
		}
	})
}

func TestAgentDeciderFailure(t *testing.T) {
	ctx := context.Background()
	decider := llm.NewMock(llm.MockOutcome{Err: errors.New("provider unavailable")})
	fx := newFixture(t, decider)

	res, err := fx.agent.Start(ctx, "conv-8", "Where is ORD-002?", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.RequiresApproval {
		t.Error("failed reasoning should not require approval")
	}
	if !strings.Contains(res.Response, "I apologize") {
		t.Errorf("response = %q, want fallback", res.Response)
	}
}

func TestAgentIterationBound(t *testing.T) {
	ctx := context.Background()
	// The model keeps asking for more data forever.
	decider := llm.NewMock(llm.MockOutcome{
		Decision: domain.Decision{Analysis: "need data", Action: domain.ActionNone, Confidence: 0.4},
		NextStep: domain.StepFetchOrder,
	})
	fx := newFixture(t, decider)

	res, err := fx.agent.Start(ctx, "conv-9", "help", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.RequiresApproval {
		t.Error("walk should terminate, not suspend")
	}
	if res.Response == "" {
		t.Error("bounded walk must still produce a response")
	}
	// One reasoning pass per iteration until the count exceeds the bound.
	if decider.Calls() != defaultMaxIterations {
		t.Errorf("decider called %d times, want %d", decider.Calls(), defaultMaxIterations)
	}
}

func TestAgentMultiPassReasoning(t *testing.T) {
	ctx := context.Background()
	// The model asks for fresh order data three times before it commits to
	// an answer on the fourth pass. All four passes stay within the bound,
	// so the final answer must be the model's, not a truncated one.
	gathering := llm.MockOutcome{
		Decision: domain.Decision{Analysis: "need more data", Action: domain.ActionNone, Confidence: 0.4},
		NextStep: domain.StepFetchOrder,
	}
	decider := llm.NewMock(
		gathering, gathering, gathering,
		llm.MockOutcome{
			Decision: domain.Decision{
				Analysis:    "Order located and policy checked.",
				FinalAnswer: "Your order ORD-002 is on the way and should arrive within two days.",
				Action:      domain.ActionNone,
				Confidence:  0.95,
			},
			NextStep: domain.StepNone,
		},
	)
	fx := newFixture(t, decider)

	res, err := fx.agent.Start(ctx, "conv-14", "Where is my order ORD-002?", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.RequiresApproval {
		t.Error("read-only loop should not suspend")
	}
	if !strings.Contains(res.Response, "on the way") {
		t.Errorf("response = %q, want the fourth-pass answer", res.Response)
	}
	if decider.Calls() != 4 {
		t.Errorf("decider called %d times, want 4", decider.Calls())
	}
	if res.State.IterationCount != defaultMaxIterations {
		t.Errorf("iteration count = %d, want %d", res.State.IterationCount, defaultMaxIterations)
	}
}

func TestAgentConcurrentThreadRejected(t *testing.T) {
	ctx := context.Background()
	decider := llm.NewMock(llm.MockOutcome{
		Decision: domain.Decision{
			FinalAnswer:      "Requesting cancellation.",
			Action:           domain.ActionCancelOrder,
			OrderID:          "ORD-001",
			Confidence:       0.9,
			RequiresApproval: true,
		},
	})
	fx := newFixture(t, decider)

	res, err := fx.agent.Start(ctx, "conv-10", "Cancel ORD-001", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !res.RequiresApproval {
		t.Fatal("expected suspension")
	}

	// The suspended thread is not locked between calls; a fresh Start on
	// it replaces the walk, and a different thread is always independent.
	if _, err := fx.agent.Start(ctx, "conv-11", "Hello there", nil); err != nil {
		t.Errorf("independent thread failed: %v", err)
	}
}

func TestAgentResumeUnknownThread(t *testing.T) {
	decider := llm.NewMock()
	fx := newFixture(t, decider)

	_, err := fx.agent.Resume(context.Background(), "missing-thread")
	if !errors.Is(err, graph.ErrNoCheckpoint) {
		t.Errorf("Resume error = %v, want ErrNoCheckpoint", err)
	}
}

func TestReduce(t *testing.T) {
	t.Run("set fields win", func(t *testing.T) {
		prev := State{UserMessage: "hi", IterationCount: 2, Confidence: 0.5}
		ord := domain.Order{ID: "ORD-001"}
		merged := Reduce(prev, State{Order: &ord, NextStep: domain.StepFetchPolicy})
		if merged.UserMessage != "hi" || merged.Order == nil || merged.NextStep != domain.StepFetchPolicy {
			t.Errorf("merged = %+v", merged)
		}
	})

	t.Run("iteration count is monotonic", func(t *testing.T) {
		merged := Reduce(State{IterationCount: 3}, State{IterationCount: 1})
		if merged.IterationCount != 3 {
			t.Errorf("iteration count = %d, want 3", merged.IterationCount)
		}
	})

	t.Run("decision carries confidence", func(t *testing.T) {
		d := domain.Decision{Confidence: 0.75}
		merged := Reduce(State{Confidence: 0.2}, State{Decision: &d, Confidence: 0.75})
		if merged.Confidence != 0.75 {
			t.Errorf("confidence = %v, want 0.75", merged.Confidence)
		}
	})

	t.Run("history replaced wholesale", func(t *testing.T) {
		prev := State{History: []domain.Message{{Role: domain.RoleUser, Content: "old"}}}
		next := []domain.Message{
			{Role: domain.RoleUser, Content: "old"},
			{Role: domain.RoleAssistant, Content: "answer"},
		}
		merged := Reduce(prev, State{History: next})
		if len(merged.History) != 2 {
			t.Errorf("history length = %d, want 2", len(merged.History))
		}
	})
}

func TestExtractOrderID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Please cancel order ORD-001", "ORD-001"},
		{"cancel ORD-002.", "ORD-002"},
		{"what about #12345?", "12345"},
		{"is my order (ORD-003) late", "ORD-003"},
		{"no order mentioned here", ""},
		{"ORD- alone is not an id", ""},
	}
	for _, tc := range cases {
		if got := extractOrderID(tc.in); got != tc.want {
			t.Errorf("extractOrderID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
