package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/supportgraph-go/domain"
)

// MemStore is an in-memory Store for tests and single-process deployments.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

func (m *MemStore) Create(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("duplicate approval ID: %s", rec.ID)
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *MemStore) Get(ctx context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemStore) Transition(ctx context.Context, id string, to domain.ApprovalStatus) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if rec.Status.Decided() {
		return Record{}, ErrAlreadyDecided
	}
	rec.Status = to
	rec.UpdatedAt = time.Now().UTC()
	m.records[id] = rec
	return rec, nil
}

// MemThreadIndex is an in-memory ThreadIndex.
type MemThreadIndex struct {
	mu      sync.RWMutex
	threads map[string]string
}

func NewMemThreadIndex() *MemThreadIndex {
	return &MemThreadIndex{threads: make(map[string]string)}
}

func (m *MemThreadIndex) Bind(ctx context.Context, approvalID, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[approvalID] = threadID
	return nil
}

func (m *MemThreadIndex) Lookup(ctx context.Context, approvalID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	threadID, ok := m.threads[approvalID]
	if !ok {
		return "", ErrNotFound
	}
	return threadID, nil
}
