// Package order provides order lookup and the write actions a support
// workflow can take against an order. Write actions are idempotent: asking
// to cancel an already-cancelled order succeeds without changing anything,
// so a retried or duplicated execution never double-applies.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/supportgraph-go/domain"
)

// ErrNotFound is returned when no order exists for an ID.
var ErrNotFound = errors.New("order not found")

// Repository persists orders.
type Repository interface {
	// Get returns the order for the ID, or ErrNotFound.
	Get(ctx context.Context, id string) (domain.Order, error)

	// UpdateStatus sets the order's status and returns the updated order.
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error)
}

// NewRefundID generates a refund reference of the form REF-XXXXXXXX.
func NewRefundID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "REF-" + strings.ToUpper(raw[:8])
}

// Service applies support actions to orders.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the order for the ID.
func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.Get(ctx, id)
}

// Execute dispatches an approved action against an order. Unknown actions
// produce a failed result rather than an error so the workflow can report
// them to the customer.
func (s *Service) Execute(ctx context.Context, action domain.Action, orderID string) domain.ExecutionResult {
	switch action {
	case domain.ActionCancelOrder:
		return s.CancelOrder(ctx, orderID)
	case domain.ActionRefundOrder:
		return s.RefundOrder(ctx, orderID)
	default:
		return domain.ExecutionResult{
			Success: false,
			OrderID: orderID,
			Error:   fmt.Sprintf("unsupported action: %s", action),
		}
	}
}

// CancelOrder cancels an order.
//
// Cancelling an already-cancelled order is a success that changes nothing.
// Delivered and refunded orders cannot be cancelled.
func (s *Service) CancelOrder(ctx context.Context, orderID string) domain.ExecutionResult {
	ord, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return lookupFailure(orderID, err)
	}

	switch ord.Status {
	case domain.OrderCancelled:
		return domain.ExecutionResult{
			Success: true,
			OrderID: orderID,
			Status:  string(ord.Status),
			Amount:  ord.Amount,
			Message: fmt.Sprintf("Order %s is already cancelled", orderID),
		}
	case domain.OrderDelivered:
		return domain.ExecutionResult{
			Success: false,
			OrderID: orderID,
			Status:  string(ord.Status),
			Error:   fmt.Sprintf("order %s has been delivered and can no longer be cancelled", orderID),
		}
	case domain.OrderRefunded:
		return domain.ExecutionResult{
			Success: false,
			OrderID: orderID,
			Status:  string(ord.Status),
			Error:   fmt.Sprintf("order %s has been refunded and cannot be cancelled", orderID),
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, orderID, domain.OrderCancelled)
	if err != nil {
		return lookupFailure(orderID, err)
	}
	return domain.ExecutionResult{
		Success: true,
		OrderID: orderID,
		Status:  string(updated.Status),
		Amount:  updated.Amount,
		Message: fmt.Sprintf("Order %s has been cancelled", orderID),
	}
}

// RefundOrder issues a refund for an order.
//
// Refunding an already-refunded order is a success that changes nothing.
// Non-refundable orders fail; a cancelled but refundable order can still be
// refunded.
func (s *Service) RefundOrder(ctx context.Context, orderID string) domain.ExecutionResult {
	ord, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return lookupFailure(orderID, err)
	}

	if ord.Status == domain.OrderRefunded {
		return domain.ExecutionResult{
			Success: true,
			OrderID: orderID,
			Status:  string(ord.Status),
			Amount:  ord.Amount,
			Message: fmt.Sprintf("Order %s has already been refunded", orderID),
		}
	}
	if !ord.Refundable {
		return domain.ExecutionResult{
			Success: false,
			OrderID: orderID,
			Status:  string(ord.Status),
			Error:   fmt.Sprintf("order %s is not refundable", orderID),
		}
	}

	wasCancelled := ord.Status == domain.OrderCancelled

	updated, err := s.repo.UpdateStatus(ctx, orderID, domain.OrderRefunded)
	if err != nil {
		return lookupFailure(orderID, err)
	}

	msg := fmt.Sprintf("Refund of $%.2f processed for order %s", updated.Amount, orderID)
	if wasCancelled {
		msg += " (order was cancelled)"
	}
	return domain.ExecutionResult{
		Success:  true,
		OrderID:  orderID,
		Status:   string(updated.Status),
		Amount:   updated.Amount,
		RefundID: NewRefundID(),
		Message:  msg,
	}
}

func lookupFailure(orderID string, err error) domain.ExecutionResult {
	if errors.Is(err, ErrNotFound) {
		return domain.ExecutionResult{
			Success: false,
			OrderID: orderID,
			Error:   fmt.Sprintf("order not found: %s", orderID),
		}
	}
	return domain.ExecutionResult{
		Success: false,
		OrderID: orderID,
		Error:   err.Error(),
	}
}
