package usage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"imguard/internal/config"
	"imguard/internal/domain"
	"imguard/internal/port"
	"imguard/internal/usage"
)

func TestOpen_Memory(t *testing.T) {
	cfg := &config.Config{Usage: config.UsageConfig{Strategy: "memory"}}

	src, err := usage.Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	assert.Equal(t, "memory", src.Name())
	_, recorder := src.UsageSource.(port.UsageRecorder)
	assert.True(t, recorder)
}

func TestOpen_EmptyStrategyDefaultsToMemory(t *testing.T) {
	src, err := usage.Open(&config.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "memory", src.Name())
}

func TestOpen_Redis(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := &config.Config{Usage: config.UsageConfig{Strategy: "redis", RedisURL: "redis://" + srv.Addr()}}

	src, err := usage.Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	assert.Equal(t, "redis", src.Name())
	pinger, ok := src.UsageSource.(port.Pinger)
	require.True(t, ok)
	assert.NoError(t, pinger.Ping(context.Background()))

	totals, err := src.Totals(context.Background(), domain.PeriodFor(time.Now()))
	require.NoError(t, err)
	assert.Zero(t, totals.StorageBytes)
}

func TestOpen_AnalyticsIsReadOnly(t *testing.T) {
	cfg := &config.Config{
		Usage: config.UsageConfig{Strategy: "analytics", AnalyticsAccount: "a", AnalyticsToken: "t", AnalyticsBucket: "images"},
	}

	src, err := usage.Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "analytics", src.Name())
	_, recorder := src.UsageSource.(port.UsageRecorder)
	assert.False(t, recorder)
}

func TestOpen_Unknown(t *testing.T) {
	_, err := usage.Open(&config.Config{Usage: config.UsageConfig{Strategy: "carrier-pigeon"}}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "carrier-pigeon")
}
