package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"imguard/internal/domain"
)

// MockUsageSource is a mock implementation of port.UsageSource.
type MockUsageSource struct {
	mock.Mock
}

func (m *MockUsageSource) Name() string {
	return "mock"
}

func (m *MockUsageSource) Totals(ctx context.Context, period domain.Period) (domain.UsageTotals, error) {
	args := m.Called(ctx, period)
	return args.Get(0).(domain.UsageTotals), args.Error(1)
}

// MockUsageCounter is a mock that also implements port.UsageRecorder and port.Pinger.
type MockUsageCounter struct {
	MockUsageSource
}

func (m *MockUsageCounter) Increment(ctx context.Context, period domain.Period, delta domain.UsageTotals) error {
	args := m.Called(ctx, period, delta)
	return args.Error(0)
}

func (m *MockUsageCounter) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
