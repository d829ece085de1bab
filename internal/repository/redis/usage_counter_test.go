package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imguard/internal/domain"
	usageredis "imguard/internal/repository/redis"
)

func newCounter(t *testing.T) (*usageredis.UsageCounter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	c, err := usageredis.Open("redis://" + srv.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

var october = domain.PeriodFor(time.Date(2026, time.October, 14, 0, 0, 0, 0, time.UTC))

func TestUsageCounter_EmptyPeriodReadsZero(t *testing.T) {
	c, _ := newCounter(t)

	totals, err := c.Totals(context.Background(), october)
	require.NoError(t, err)
	assert.Equal(t, domain.UsageTotals{}, totals)
}

func TestUsageCounter_IncrementAccumulates(t *testing.T) {
	ctx := context.Background()
	c, srv := newCounter(t)

	require.NoError(t, c.Increment(ctx, october, domain.UploadDelta(2048)))
	require.NoError(t, c.Increment(ctx, october, domain.UploadDelta(512)))

	totals, err := c.Totals(ctx, october)
	require.NoError(t, err)
	assert.Equal(t, domain.UsageTotals{StorageBytes: 2560, ClassAOps: 2}, totals)

	assert.Equal(t, "2560", mustGet(t, srv, "imguard:usage:2026-10:storage"))
	assert.Positive(t, srv.TTL("imguard:usage:2026-10:storage"))
	assert.False(t, srv.Exists("imguard:usage:2026-10:classB"), "zero deltas are not written")
}

func TestUsageCounter_PeriodsAreIndependent(t *testing.T) {
	ctx := context.Background()
	c, _ := newCounter(t)
	november := domain.PeriodFor(october.End)

	require.NoError(t, c.Increment(ctx, october, domain.UploadDelta(10)))

	totals, err := c.Totals(ctx, november)
	require.NoError(t, err)
	assert.Zero(t, totals.StorageBytes)
}

func TestUsageCounter_CorruptValue(t *testing.T) {
	c, srv := newCounter(t)
	require.NoError(t, srv.Set("imguard:usage:2026-10:classA", "not-a-number"))

	_, err := c.Totals(context.Background(), october)
	require.Error(t, err)
	assert.True(t, usageredis.Error.Has(err))
}

func TestUsageCounter_Unreachable(t *testing.T) {
	c, srv := newCounter(t)
	srv.Close()

	_, err := c.Totals(context.Background(), october)
	require.Error(t, err)
	assert.True(t, usageredis.Error.Has(err))
	assert.Error(t, c.Ping(context.Background()))
}

func TestUsageCounter_Ping(t *testing.T) {
	c, _ := newCounter(t)
	assert.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, "redis", c.Name())
}

func TestOpen_InvalidURL(t *testing.T) {
	_, err := usageredis.Open("http://not-redis")
	require.Error(t, err)
	assert.True(t, usageredis.Error.Has(err))
}

func mustGet(t *testing.T, srv *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := srv.Get(key)
	require.NoError(t, err)
	return v
}
