package quota_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imguard/internal/domain"
	"imguard/internal/quota"
)

var limits = domain.QuotaLimits{StorageBytes: 10_000, ClassAOps: 1_000, ClassBOps: 10_000}

func snapshot(storage, classA, classB int64) *domain.UsageSnapshot {
	return &domain.UsageSnapshot{
		Totals: domain.UsageTotals{StorageBytes: storage, ClassAOps: classA, ClassBOps: classB},
		Limits: limits,
		Source: "test",
	}
}

func TestEvaluate_WellUnderQuota(t *testing.T) {
	d := quota.NewGate(50).Evaluate(snapshot(100, 10, 10), 2048)

	assert.True(t, d.CanProceed)
	assert.Empty(t, d.Exceeded)
	assert.Equal(t, int64(2148), d.Projection(domain.DimensionStorage).Projected)
	assert.Equal(t, int64(11), d.Projection(domain.DimensionClassA).Projected)
	assert.Equal(t, int64(10), d.Projection(domain.DimensionClassB).Projected)
	assert.Equal(t, int64(2148), d.Projected.Totals.StorageBytes)
	assert.Len(t, d.Projections, 3)
}

func TestEvaluate_StorageCrossesThreshold(t *testing.T) {
	// 49% current, pending file pushes storage to 51%.
	d := quota.NewGate(50).Evaluate(snapshot(4_900, 10, 10), 200)

	require.False(t, d.CanProceed)
	assert.Equal(t, []domain.Dimension{domain.DimensionStorage}, d.Exceeded)
	storage := d.Projection(domain.DimensionStorage)
	assert.InDelta(t, 49.0, storage.Percentage, 1e-9)
	assert.InDelta(t, 51.0, storage.ProjectedPercentage, 1e-9)
	assert.True(t, storage.Exceeded)
	assert.False(t, d.Projection(domain.DimensionClassA).Exceeded)
	assert.False(t, d.Projection(domain.DimensionClassB).Exceeded)
}

func TestEvaluate_ExactlyAtThresholdProceeds(t *testing.T) {
	d := quota.NewGate(50).Evaluate(snapshot(4_000, 10, 10), 1_000)
	assert.True(t, d.CanProceed)
}

func TestEvaluate_ReportsEveryExceededDimension(t *testing.T) {
	d := quota.NewGate(50).Evaluate(snapshot(6_000, 500, 6_000), 0)

	require.False(t, d.CanProceed)
	assert.Equal(t, []domain.Dimension{
		domain.DimensionStorage, domain.DimensionClassA, domain.DimensionClassB,
	}, d.Exceeded)
}

func TestEvaluate_ClassBUsesCurrentValue(t *testing.T) {
	d := quota.NewGate(50).Evaluate(snapshot(0, 0, 5_001), 0)
	assert.Equal(t, []domain.Dimension{domain.DimensionClassB}, d.Exceeded)
}

func TestEvaluate_ClassAPutCountsOne(t *testing.T) {
	// 500 ops is exactly 50%; the PUT makes it 50.1%.
	d := quota.NewGate(50).Evaluate(snapshot(0, 500, 0), 1)
	assert.Equal(t, []domain.Dimension{domain.DimensionClassA}, d.Exceeded)
}

func TestEvaluate_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	gate := quota.NewGate(50)

	for i := 0; i < 1000; i++ {
		s := snapshot(rng.Int63n(limits.StorageBytes), rng.Int63n(limits.ClassAOps), rng.Int63n(limits.ClassBOps))
		size := rng.Int63n(limits.StorageBytes / 2)
		d := gate.Evaluate(s, size)

		anyOver := false
		for _, dim := range domain.Dimensions {
			projected := s.Totals.Add(domain.UploadDelta(size)).Get(dim)
			over := domain.Percentage(projected, limits.Get(dim)) > 50
			assert.Equal(t, over, contains(d.Exceeded, dim))
			anyOver = anyOver || over
		}
		assert.Equal(t, !anyOver, d.CanProceed)
	}
}

func TestShouldBlock(t *testing.T) {
	gate := quota.NewGate(50)
	assert.False(t, gate.ShouldBlock(snapshot(4_000, 400, 5_000)))
	assert.True(t, gate.ShouldBlock(snapshot(5_001, 0, 0)))
	assert.True(t, gate.ShouldBlock(snapshot(5_000, 0, 0)), "next byte crosses the threshold")
	assert.True(t, gate.ShouldBlock(snapshot(0, 500, 0)), "next PUT crosses the threshold")
}

func TestShouldBlock_AgreesWithEvaluate(t *testing.T) {
	gate := quota.NewGate(50)
	fallback := snapshot(5_000, 500, 5_000)
	fallback.Fallback = true

	require.False(t, gate.Evaluate(fallback, 1).CanProceed)
	assert.True(t, gate.ShouldBlock(fallback))

	for _, s := range []*domain.UsageSnapshot{snapshot(0, 0, 0), snapshot(4_999, 499, 9_999), snapshot(5_000, 499, 0)} {
		assert.Equal(t, !gate.Evaluate(s, 1).CanProceed, gate.ShouldBlock(s))
	}
}

func contains(dims []domain.Dimension, d domain.Dimension) bool {
	for _, x := range dims {
		if x == d {
			return true
		}
	}
	return false
}
