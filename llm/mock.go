package llm

import (
	"context"
	"sync"

	"github.com/dshills/supportgraph-go/domain"
)

// MockOutcome is one scripted Decide result.
type MockOutcome struct {
	Decision domain.Decision
	NextStep domain.NextStep
	Err      error
}

// Mock is a scripted Decider for tests. Outcomes are consumed in order;
// once the script runs out, the last outcome repeats. It also records the
// requests it received.
type Mock struct {
	mu       sync.Mutex
	outcomes []MockOutcome
	calls    int
	Requests []Request
}

// NewMock creates a Mock that plays back the given outcomes.
func NewMock(outcomes ...MockOutcome) *Mock {
	return &Mock{outcomes: outcomes}
}

func (m *Mock) Decide(ctx context.Context, req Request) (domain.Decision, domain.NextStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if len(m.outcomes) == 0 {
		return domain.Decision{}, domain.StepNone, nil
	}
	idx := m.calls
	if idx >= len(m.outcomes) {
		idx = len(m.outcomes) - 1
	}
	m.calls++

	out := m.outcomes[idx]
	return out.Decision, out.NextStep, out.Err
}

// Calls returns how many times Decide ran.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
