// Package approval manages human approval records for write actions.
//
// A record is created when a workflow suspends for sign-off and carries the
// order and action under review. Records move PENDING -> APPROVED or
// PENDING -> REJECTED exactly once; decided records are immutable.
package approval

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/supportgraph-go/domain"
)

var (
	// ErrNotFound is returned when no record exists for an approval ID.
	ErrNotFound = errors.New("approval not found")

	// ErrAlreadyDecided is returned when a transition targets a record
	// that has already been approved or rejected.
	ErrAlreadyDecided = errors.New("approval already decided")

	// ErrInvalidDecision is returned when a decision names a status other
	// than APPROVED or REJECTED.
	ErrInvalidDecision = errors.New("decision must be APPROVED or REJECTED")
)

// Record is one approval request.
type Record struct {
	ID        string                `json:"approval_id"`
	OrderID   string                `json:"order_id"`
	Action    domain.Action         `json:"action"`
	Status    domain.ApprovalStatus `json:"status"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Store persists approval records.
type Store interface {
	// Create inserts a new record. The record's ID must be unique.
	Create(ctx context.Context, rec Record) error

	// Get returns the record for the ID, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// Transition moves a PENDING record to the given decided status and
	// returns the updated record. It returns ErrAlreadyDecided when the
	// record is no longer PENDING; the stored decision is untouched.
	Transition(ctx context.Context, id string, to domain.ApprovalStatus) (Record, error)
}

// ThreadIndex maps approval IDs back to the workflow thread that is
// suspended waiting on them, so a decision can resume the right walk.
type ThreadIndex interface {
	Bind(ctx context.Context, approvalID, threadID string) error
	Lookup(ctx context.Context, approvalID string) (string, error)
}

// NewID generates an approval ID of the form APR-XXXXXXXX.
func NewID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "APR-" + strings.ToUpper(raw[:8])
}

// Service coordinates record creation and decisions over a Store and a
// ThreadIndex.
type Service struct {
	store Store
	index ThreadIndex
}

func NewService(store Store, index ThreadIndex) *Service {
	return &Service{store: store, index: index}
}

// Request creates a PENDING record for the action on the order and binds it
// to the suspended thread.
func (s *Service) Request(ctx context.Context, threadID, orderID string, action domain.Action) (Record, error) {
	now := time.Now().UTC()
	rec := Record{
		ID:        NewID(),
		OrderID:   orderID,
		Action:    action,
		Status:    domain.ApprovalPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return Record{}, err
	}
	if err := s.index.Bind(ctx, rec.ID, threadID); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get returns the record for the approval ID.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.store.Get(ctx, id)
}

// Decide applies a human decision. Only APPROVED and REJECTED are valid
// targets; repeated decisions fail with ErrAlreadyDecided rather than
// overwriting the first one.
func (s *Service) Decide(ctx context.Context, id string, to domain.ApprovalStatus) (Record, error) {
	if !to.Decided() {
		return Record{}, ErrInvalidDecision
	}
	return s.store.Transition(ctx, id, to)
}

// ThreadFor returns the thread bound to the approval ID.
func (s *Service) ThreadFor(ctx context.Context, approvalID string) (string, error) {
	return s.index.Lookup(ctx, approvalID)
}
