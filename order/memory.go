package order

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/supportgraph-go/domain"
)

// MemRepository is an in-memory Repository for tests and demos.
type MemRepository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewMemRepository() *MemRepository {
	return &MemRepository{orders: make(map[string]domain.Order)}
}

// NewSeededRepository returns a MemRepository preloaded with the demo
// catalog.
func NewSeededRepository() *MemRepository {
	repo := NewMemRepository()
	for _, ord := range SeedOrders() {
		repo.Put(ord)
	}
	return repo
}

// SeedOrders is the demo catalog: orders in every status the workflow has
// to handle, including a delayed one and a non-refundable one.
func SeedOrders() []domain.Order {
	now := time.Now().UTC()
	return []domain.Order{
		{
			ID:               "ORD-001",
			Status:           domain.OrderPlaced,
			ExpectedDelivery: now.AddDate(0, 0, 5),
			Amount:           99.99,
			Refundable:       true,
			Description:      "Wireless headphones",
		},
		{
			ID:               "ORD-002",
			Status:           domain.OrderShipped,
			ExpectedDelivery: now.AddDate(0, 0, 2),
			Amount:           149.50,
			Refundable:       true,
			Description:      "Mechanical keyboard",
		},
		{
			ID:               "ORD-003",
			Status:           domain.OrderDelivered,
			ExpectedDelivery: now.AddDate(0, 0, -3),
			Amount:           79.99,
			Refundable:       true,
			Description:      "USB-C docking station",
		},
		{
			ID:               "ORD-004",
			Status:           domain.OrderCancelled,
			ExpectedDelivery: now.AddDate(0, 0, 7),
			Amount:           199.99,
			Refundable:       false,
			Description:      "Smart watch",
		},
		{
			ID:               "ORD-005",
			Status:           domain.OrderPlaced,
			ExpectedDelivery: now.AddDate(0, 0, -10),
			Amount:           299.99,
			Refundable:       true,
			Description:      "Ergonomic office chair (delayed)",
		},
	}
}

// Put inserts or replaces an order.
func (m *MemRepository) Put(ord domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[ord.ID] = ord
}

func (m *MemRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ord, ok := m.orders[id]
	if !ok {
		return domain.Order{}, ErrNotFound
	}
	return ord, nil
}

func (m *MemRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, ok := m.orders[id]
	if !ok {
		return domain.Order{}, ErrNotFound
	}
	ord.Status = status
	m.orders[id] = ord
	return ord, nil
}
