package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/segyhp/rental-billing/internal/domain"
	"github.com/segyhp/rental-billing/internal/gateway"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Initiate(ctx context.Context, req gateway.InitRequest) (*gateway.InitResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.InitResult), args.Error(1)
}

func (m *MockGateway) Check(ctx context.Context, transactionID string) (*gateway.CheckResult, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CheckResult), args.Error(1)
}

// MockDispatcher records every dispatched event in addition to the usual
// expectations.
type MockDispatcher struct {
	mock.Mock
	mu     sync.Mutex
	Events []domain.Event
}

func (m *MockDispatcher) Dispatch(ctx context.Context, event domain.Event) error {
	m.mu.Lock()
	m.Events = append(m.Events, event)
	m.mu.Unlock()
	args := m.Called(ctx, event)
	return args.Error(0)
}

// OfType returns the recorded events of type t.
func (m *MockDispatcher) OfType(t domain.EventType) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, e := range m.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
