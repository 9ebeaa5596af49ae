package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/goalforge/entitlement/internal/domain/entity"
	"github.com/goalforge/entitlement/internal/domain/service"
)

// MockRemoteSource is a mock implementation of RemoteSource
type MockRemoteSource struct {
	mock.Mock
}

// NewMockRemoteSource creates a new mock remote source
func NewMockRemoteSource() *MockRemoteSource {
	return &MockRemoteSource{}
}

func (m *MockRemoteSource) Initialize(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockRemoteSource) CustomerInfo(ctx context.Context) service.FetchResult {
	args := m.Called(ctx)
	return args.Get(0).(service.FetchResult)
}

func (m *MockRemoteSource) Purchase(ctx context.Context, productID string) (*service.PurchaseOutcome, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PurchaseOutcome), args.Error(1)
}

func (m *MockRemoteSource) Restore(ctx context.Context) service.FetchResult {
	args := m.Called(ctx)
	return args.Get(0).(service.FetchResult)
}

func (m *MockRemoteSource) Offerings(ctx context.Context) ([]entity.Package, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Package), args.Error(1)
}

func (m *MockRemoteSource) InvalidateCache(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRemoteSource) ForceSync(ctx context.Context) service.FetchResult {
	args := m.Called(ctx)
	return args.Get(0).(service.FetchResult)
}
