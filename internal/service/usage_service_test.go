package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"imguard/internal/config"
	"imguard/internal/domain"
	"imguard/internal/metrics"
	"imguard/internal/port"
	"imguard/internal/service"
	"imguard/mocks"
)

func testQuotaConfig() *config.QuotaConfig {
	return &config.QuotaConfig{
		StorageLimitBytes: 10_000,
		ClassALimit:       1_000,
		ClassBLimit:       10_000,
		BlockThreshold:    50,
		WarningThreshold:  40,
		FallbackPercent:   50,
	}
}

func newUsageService(t *testing.T, src port.UsageSource, timeout time.Duration) service.UsageService {
	return service.NewUsageService(src, testQuotaConfig(), timeout, metrics.Nop{}, zaptest.NewLogger(t))
}

func TestUsageService_Snapshot_Success(t *testing.T) {
	src := new(mocks.MockUsageSource)
	src.On("Totals", mock.Anything, mock.AnythingOfType("domain.Period")).
		Return(domain.UsageTotals{StorageBytes: 2_500, ClassAOps: 10, ClassBOps: 20}, nil)

	snap := newUsageService(t, src, time.Second).Snapshot(context.Background())

	assert.False(t, snap.Fallback)
	assert.Empty(t, snap.Error)
	assert.Equal(t, "mock", snap.Source)
	assert.InDelta(t, 25.0, snap.Percent(domain.DimensionStorage), 1e-9)
	assert.Equal(t, int64(10_000), snap.Limits.StorageBytes)
	assert.True(t, snap.Period.Contains(snap.FetchedAt))
	src.AssertExpectations(t)
}

func TestUsageService_Snapshot_ErrorFallsBackConservatively(t *testing.T) {
	src := new(mocks.MockUsageSource)
	src.On("Totals", mock.Anything, mock.Anything).Return(domain.UsageTotals{}, errors.New("connection refused"))

	snap := newUsageService(t, src, time.Second).Snapshot(context.Background())

	require.True(t, snap.Fallback)
	assert.Contains(t, snap.Error, "connection refused")
	for _, dim := range domain.Dimensions {
		assert.InDelta(t, 50.0, snap.Percent(dim), 1e-9, dim)
	}
}

func TestUsageService_Snapshot_TimeoutFallsBack(t *testing.T) {
	src := new(mocks.MockUsageSource)
	src.On("Totals", mock.Anything, mock.Anything).
		WaitUntil(time.After(2*time.Second)).
		Return(domain.UsageTotals{}, nil)

	start := time.Now()
	snap := newUsageService(t, src, 30*time.Millisecond).Snapshot(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	require.True(t, snap.Fallback)
	assert.Contains(t, snap.Error, domain.ErrUsageUnavailable.Error())
}

func TestUsageService_Snapshot_NegativeCounterFallsBack(t *testing.T) {
	src := new(mocks.MockUsageSource)
	src.On("Totals", mock.Anything, mock.Anything).Return(domain.UsageTotals{ClassAOps: -4}, nil)

	snap := newUsageService(t, src, time.Second).Snapshot(context.Background())
	assert.True(t, snap.Fallback)
}

func TestUsageService_RecordUpload(t *testing.T) {
	counter := new(mocks.MockUsageCounter)
	counter.On("Increment", mock.Anything, mock.AnythingOfType("domain.Period"), domain.UploadDelta(2048)).Return(nil)

	svc := newUsageService(t, counter, time.Second)

	require.NoError(t, svc.RecordUpload(context.Background(), 2048))
	assert.True(t, svc.Realtime())
	counter.AssertExpectations(t)
}

func TestUsageService_RecordUpload_ReadOnlySource(t *testing.T) {
	src := new(mocks.MockUsageSource)
	svc := newUsageService(t, src, time.Second)

	assert.NoError(t, svc.RecordUpload(context.Background(), 2048))
	assert.False(t, svc.Realtime())
	src.AssertNotCalled(t, "Increment")
}

func TestUsageService_Ping(t *testing.T) {
	counter := new(mocks.MockUsageCounter)
	counter.On("Ping", mock.Anything).Return(errors.New("down"))

	assert.EqualError(t, newUsageService(t, counter, time.Second).Ping(context.Background()), "down")
	assert.NoError(t, newUsageService(t, new(mocks.MockUsageSource), time.Second).Ping(context.Background()))
}

func TestUsageService_Report(t *testing.T) {
	tests := []struct {
		name        string
		totals      domain.UsageTotals
		shouldBlock bool
		warnings    int
	}{
		{"quiet", domain.UsageTotals{StorageBytes: 1_000, ClassAOps: 10, ClassBOps: 10}, false, 0},
		{"approaching", domain.UsageTotals{StorageBytes: 4_500, ClassAOps: 10, ClassBOps: 10}, false, 1},
		{"over", domain.UsageTotals{StorageBytes: 6_000, ClassAOps: 450, ClassBOps: 10}, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := new(mocks.MockUsageSource)
			src.On("Totals", mock.Anything, mock.Anything).Return(tt.totals, nil)

			report := newUsageService(t, src, time.Second).Report(context.Background())

			assert.Equal(t, tt.shouldBlock, report.Usage.ShouldBlockUploads)
			assert.Len(t, report.Usage.Warnings, tt.warnings)
			assert.Equal(t, tt.totals.ClassAOps, report.Usage.ClassA.CurrentValue)
			assert.Equal(t, int64(1_000), report.Usage.ClassA.Limit)
			assert.False(t, report.Usage.Fallback)
		})
	}
}

func TestUsageService_Report_FallbackStill200Shape(t *testing.T) {
	src := new(mocks.MockUsageSource)
	src.On("Totals", mock.Anything, mock.Anything).Return(domain.UsageTotals{}, context.DeadlineExceeded)

	report := newUsageService(t, src, time.Second).Report(context.Background())

	require.True(t, report.Usage.Fallback)
	require.NotEmpty(t, report.Usage.Warnings)
	assert.Contains(t, report.Usage.Warnings[0], "unavailable")
	assert.InDelta(t, 50.0, report.Usage.Storage.Percentage, 1e-9)
	assert.InDelta(t, 50.0, report.Usage.ClassB.Percentage, 1e-9)
	assert.True(t, report.Usage.ShouldBlockUploads)
	assert.NotEmpty(t, report.Usage.Period.Key)
}

func TestSummarize(t *testing.T) {
	s := service.Summarize(&domain.UsageSnapshot{
		Totals: domain.UsageTotals{StorageBytes: 1 << 30, ClassAOps: 12_345, ClassBOps: 0},
		Limits: domain.QuotaLimits{StorageBytes: 10 << 30, ClassAOps: 1_000_000, ClassBOps: 10_000_000},
	})

	assert.Equal(t, "1.0 GiB of 10 GiB (10.00%)", s.Storage)
	assert.Equal(t, "12,345 of 1,000,000 operations (1.23%)", s.ClassA)
	assert.Equal(t, "0 of 10,000,000 operations (0.00%)", s.ClassB)
}
