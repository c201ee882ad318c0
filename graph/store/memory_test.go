package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

type walkState struct {
	Customer string   `json:"customer"`
	Step     int      `json:"step"`
	Notes    []string `json:"notes"`
}

func TestMemStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore[walkState]()

	cp := Checkpoint[walkState]{
		ThreadID:    "conv-1",
		State:       walkState{Customer: "alice", Step: 2, Notes: []string{"cancel request"}},
		PendingNode: "check_approval",
		CreatedAt:   time.Now().UTC(),
	}
	if err := st.Save(ctx, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Load(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.State.Customer != "alice" || got.State.Step != 2 {
		t.Errorf("loaded state = %+v", got.State)
	}
	if got.PendingNode != "check_approval" {
		t.Errorf("pending = %q, want check_approval", got.PendingNode)
	}
}

func TestMemStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore[walkState]()

	first := Checkpoint[walkState]{ThreadID: "conv-1", State: walkState{Step: 1}, PendingNode: "reason"}
	second := Checkpoint[walkState]{ThreadID: "conv-1", State: walkState{Step: 2}, PendingNode: "respond"}

	if err := st.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := st.Save(ctx, second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Load(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.State.Step != 2 || got.PendingNode != "respond" {
		t.Errorf("latest checkpoint = %+v, want step 2 pending respond", got)
	}
}

func TestMemStoreNotFound(t *testing.T) {
	st := NewMemStore[walkState]()
	_, err := st.Load(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load error = %v, want ErrNotFound", err)
	}
}

func TestMemStoreDelete(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore[walkState]()

	cp := Checkpoint[walkState]{ThreadID: "conv-1", State: walkState{Step: 1}, PendingNode: "reason"}
	if err := st.Save(ctx, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := st.Delete(ctx, "conv-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Load(ctx, "conv-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete = %v, want ErrNotFound", err)
	}
}

// Saved checkpoints must not alias caller-held slices.
func TestMemStoreIsolation(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore[walkState]()

	notes := []string{"original"}
	cp := Checkpoint[walkState]{ThreadID: "conv-1", State: walkState{Notes: notes}, PendingNode: "reason"}
	if err := st.Save(ctx, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	notes[0] = "mutated"

	got, err := st.Load(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.State.Notes[0] != "original" {
		t.Errorf("stored state aliased caller slice: %q", got.State.Notes[0])
	}
}
