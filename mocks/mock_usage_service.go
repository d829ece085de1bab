package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"imguard/internal/domain"
	"imguard/internal/service"
)

// MockUsageService is a mock implementation of service.UsageService.
type MockUsageService struct {
	mock.Mock
}

func (m *MockUsageService) Snapshot(ctx context.Context) *domain.UsageSnapshot {
	args := m.Called(ctx)
	return args.Get(0).(*domain.UsageSnapshot)
}

func (m *MockUsageService) RecordUpload(ctx context.Context, sizeBytes int64) error {
	args := m.Called(ctx, sizeBytes)
	return args.Error(0)
}

func (m *MockUsageService) Realtime() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockUsageService) Report(ctx context.Context) *service.UsageReport {
	args := m.Called(ctx)
	return args.Get(0).(*service.UsageReport)
}

func (m *MockUsageService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
