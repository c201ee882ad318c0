package approval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/supportgraph-go/domain"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if !strings.HasPrefix(id, "APR-") {
			t.Fatalf("id %q missing APR- prefix", id)
		}
		suffix := strings.TrimPrefix(id, "APR-")
		if len(suffix) != 8 {
			t.Fatalf("id %q suffix length = %d, want 8", id, len(suffix))
		}
		if suffix != strings.ToUpper(suffix) {
			t.Errorf("id %q suffix not upper-case", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestServiceRequestAndDecide(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemStore(), NewMemThreadIndex())

	rec, err := svc.Request(ctx, "conv-1", "ORD-001", domain.ActionCancelOrder)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if rec.Status != domain.ApprovalPending {
		t.Errorf("new record status = %s, want PENDING", rec.Status)
	}
	if rec.OrderID != "ORD-001" || rec.Action != domain.ActionCancelOrder {
		t.Errorf("record = %+v", rec)
	}

	t.Run("thread binding", func(t *testing.T) {
		threadID, err := svc.ThreadFor(ctx, rec.ID)
		if err != nil {
			t.Fatalf("ThreadFor: %v", err)
		}
		if threadID != "conv-1" {
			t.Errorf("thread = %q, want conv-1", threadID)
		}
	})

	t.Run("approve", func(t *testing.T) {
		updated, err := svc.Decide(ctx, rec.ID, domain.ApprovalApproved)
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if updated.Status != domain.ApprovalApproved {
			t.Errorf("status = %s, want APPROVED", updated.Status)
		}
		if !updated.UpdatedAt.After(updated.CreatedAt) && !updated.UpdatedAt.Equal(updated.CreatedAt) {
			t.Errorf("updated_at %v precedes created_at %v", updated.UpdatedAt, updated.CreatedAt)
		}
	})

	t.Run("second decision conflicts", func(t *testing.T) {
		_, err := svc.Decide(ctx, rec.ID, domain.ApprovalRejected)
		if !errors.Is(err, ErrAlreadyDecided) {
			t.Errorf("Decide error = %v, want ErrAlreadyDecided", err)
		}
		got, err := svc.Get(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != domain.ApprovalApproved {
			t.Errorf("decision was overwritten: %s", got.Status)
		}
	})
}

func TestServiceDecideValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemStore(), NewMemThreadIndex())

	rec, err := svc.Request(ctx, "conv-1", "ORD-002", domain.ActionRefundOrder)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	t.Run("pending is not a decision", func(t *testing.T) {
		_, err := svc.Decide(ctx, rec.ID, domain.ApprovalPending)
		if !errors.Is(err, ErrInvalidDecision) {
			t.Errorf("Decide error = %v, want ErrInvalidDecision", err)
		}
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		_, err := svc.Decide(ctx, rec.ID, domain.ApprovalStatus("MAYBE"))
		if !errors.Is(err, ErrInvalidDecision) {
			t.Errorf("Decide error = %v, want ErrInvalidDecision", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.Decide(ctx, "APR-DEADBEEF", domain.ApprovalApproved)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Decide error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteStoreApprovals(t *testing.T) {
	ctx := context.Background()
	st, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer func() { _ = st.Close() }()

	svc := NewService(st, st)

	rec, err := svc.Request(ctx, "conv-9", "ORD-001", domain.ActionCancelOrder)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	t.Run("round trip", func(t *testing.T) {
		got, err := st.Get(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != domain.ApprovalPending || got.OrderID != "ORD-001" || got.Action != domain.ActionCancelOrder {
			t.Errorf("record = %+v", got)
		}
	})

	t.Run("lookup thread", func(t *testing.T) {
		threadID, err := st.Lookup(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if threadID != "conv-9" {
			t.Errorf("thread = %q, want conv-9", threadID)
		}
	})

	t.Run("transition once", func(t *testing.T) {
		updated, err := st.Transition(ctx, rec.ID, domain.ApprovalRejected)
		if err != nil {
			t.Fatalf("Transition: %v", err)
		}
		if updated.Status != domain.ApprovalRejected {
			t.Errorf("status = %s, want REJECTED", updated.Status)
		}

		_, err = st.Transition(ctx, rec.ID, domain.ApprovalApproved)
		if !errors.Is(err, ErrAlreadyDecided) {
			t.Errorf("second Transition error = %v, want ErrAlreadyDecided", err)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		if _, err := st.Get(ctx, "APR-00000000"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get error = %v, want ErrNotFound", err)
		}
		if _, err := st.Transition(ctx, "APR-00000000", domain.ApprovalApproved); !errors.Is(err, ErrNotFound) {
			t.Errorf("Transition error = %v, want ErrNotFound", err)
		}
		if _, err := st.Lookup(ctx, "APR-00000000"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Lookup error = %v, want ErrNotFound", err)
		}
	})
}
