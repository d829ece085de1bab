package ratelimit_test

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imguard/internal/ratelimit"
)

var base = time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)

func never() float64 { return 1 }

func TestTryAdmit_TwentyFirstAttemptRefused(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Window: 15 * time.Minute, MaxAttempts: 20}, ratelimit.WithRandom(never))

	for i := 0; i < 20; i++ {
		require.True(t, l.TryAdmit("10.0.0.1", base.Add(time.Duration(i)*time.Second)), "attempt %d", i+1)
	}
	assert.False(t, l.TryAdmit("10.0.0.1", base.Add(30*time.Second)))
	assert.True(t, l.TryAdmit("10.0.0.2", base.Add(30*time.Second)), "other identities are independent")
}

func TestTryAdmit_WindowSlides(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Window: time.Minute, MaxAttempts: 2}, ratelimit.WithRandom(never))

	require.True(t, l.TryAdmit("a", base))
	require.True(t, l.TryAdmit("a", base.Add(30*time.Second)))
	require.False(t, l.TryAdmit("a", base.Add(59*time.Second)))

	// The first attempt falls out of the window; one slot frees up.
	assert.True(t, l.TryAdmit("a", base.Add(61*time.Second)))
	assert.False(t, l.TryAdmit("a", base.Add(62*time.Second)))
}

func TestTryAdmit_RefusalsDoNotExtendWindow(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Window: time.Minute, MaxAttempts: 1}, ratelimit.WithRandom(never))

	require.True(t, l.TryAdmit("a", base))
	for i := 1; i < 60; i++ {
		require.False(t, l.TryAdmit("a", base.Add(time.Duration(i)*time.Second)))
	}
	assert.True(t, l.TryAdmit("a", base.Add(61*time.Second)))
}

func TestTryAdmit_NeverExceedsCapInAnyWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		capacity := 1 + rng.Intn(10)
		window := time.Duration(1+rng.Intn(120)) * time.Second
		l := ratelimit.New(ratelimit.Config{Window: window, MaxAttempts: capacity, SweepProbability: 0.2})

		now := base
		var admitted []time.Time
		for i := 0; i < 300; i++ {
			now = now.Add(time.Duration(rng.Intn(5000)) * time.Millisecond)
			if l.TryAdmit("id", now) {
				admitted = append(admitted, now)
			}
		}

		for i := range admitted {
			count := 0
			for j := i; j < len(admitted) && !admitted[j].After(admitted[i].Add(window)); j++ {
				count++
			}
			require.LessOrEqualf(t, count, capacity, "trial %d: %d admissions within %s", trial, count, window)
		}
	}
}

func TestSweep_RemovesIdleIdentities(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Window: time.Minute, MaxAttempts: 5}, ratelimit.WithRandom(never))

	l.TryAdmit("old", base)
	l.TryAdmit("fresh", base.Add(50*time.Second))
	require.Equal(t, 2, l.Tracked())

	l.Sweep(base.Add(90 * time.Second))
	assert.Equal(t, 1, l.Tracked())
}

func TestTryAdmit_ProbabilisticSweep(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Window: time.Minute, MaxAttempts: 5, SweepProbability: 0.5},
		ratelimit.WithRandom(func() float64 { return 0 }))

	l.TryAdmit("old", base)
	l.TryAdmit("other", base.Add(2*time.Minute))

	assert.Equal(t, 1, l.Tracked(), "sweep on the second call drops the stale identity")
}

func TestTryAdmit_ConcurrentCallersShareCap(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Window: time.Hour, MaxAttempts: 20}, ratelimit.WithRandom(never))

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAdmit("burst", base) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), admitted.Load())
}

func TestRetryAfter(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{Window: 15 * time.Minute, MaxAttempts: 1})
	assert.Equal(t, 15*time.Minute, l.RetryAfter())
}
