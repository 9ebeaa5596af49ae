package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/goalforge/entitlement/internal/domain/entity"
)

// MockCacheRepository is a mock implementation of CacheRepository
type MockCacheRepository struct {
	mock.Mock
}

// NewMockCacheRepository creates a new mock cache repository
func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{}
}

func (m *MockCacheRepository) Entry(ctx context.Context) (*entity.LocalCacheEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.LocalCacheEntry), args.Error(1)
}

func (m *MockCacheRepository) SetTrialStart(ctx context.Context, startISO string) error {
	args := m.Called(ctx, startISO)
	return args.Error(0)
}

func (m *MockCacheRepository) ClearTrialStart(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCacheRepository) SetSubscriptionActive(ctx context.Context, active bool) error {
	args := m.Called(ctx, active)
	return args.Error(0)
}

func (m *MockCacheRepository) SetHasSeenPaywall(ctx context.Context, seen bool) error {
	args := m.Called(ctx, seen)
	return args.Error(0)
}

func (m *MockCacheRepository) SetStatusMirror(ctx context.Context, status string) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

func (m *MockCacheRepository) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
