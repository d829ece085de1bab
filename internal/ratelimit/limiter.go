// Package ratelimit implements per-identity sliding window admission.
//
// State lives in process memory for the lifetime of the process and is lost
// on restart. Each instance limits independently; cross-instance limits need
// an external store with an atomic increment primitive.
package ratelimit

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Config holds the window width, the per-identity cap, and the chance that a
// call triggers a sweep of all tracked identities.
type Config struct {
	Window           time.Duration
	MaxAttempts      int
	SweepProbability float64
}

// Limiter admits at most MaxAttempts attempts per identity in any trailing
// Window. Only admitted attempts are recorded.
type Limiter struct {
	cfg    Config
	random func() float64

	mu      sync.Mutex
	entries map[string][]time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithRandom replaces the source used to decide when to sweep.
func WithRandom(fn func() float64) Option {
	return func(l *Limiter) { l.random = fn }
}

// New creates a Limiter.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		random:  rand.Float64,
		entries: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RetryAfter is the back-off hint returned to refused callers.
func (l *Limiter) RetryAfter() time.Duration {
	return l.cfg.Window
}

// TryAdmit records an attempt by identity at now and reports whether it is
// within the cap. Refused attempts leave the stored window untouched.
//
// The read-filter-write sequence runs under one lock, so concurrent callers
// for the same identity cannot both take the last free slot.
func (l *Limiter) TryAdmit(identity string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.SweepProbability > 0 && l.random() < l.cfg.SweepProbability {
		l.sweepLocked(now)
	}

	recent := l.withinWindow(l.entries[identity], now)
	if len(recent) >= l.cfg.MaxAttempts {
		return false
	}
	l.entries[identity] = append(recent, now)
	return true
}

// Sweep drops timestamps outside the window and forgets identities with none left.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)
}

// Tracked returns how many identities currently hold state.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Limiter) sweepLocked(now time.Time) {
	for id, stamps := range l.entries {
		recent := l.withinWindow(stamps, now)
		if len(recent) == 0 {
			delete(l.entries, id)
			continue
		}
		l.entries[id] = recent
	}
}

// withinWindow returns a new slice holding the stamps in [now-Window, now].
func (l *Limiter) withinWindow(stamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.cfg.Window)
	kept := make([]time.Time, 0, len(stamps)+1)
	for _, ts := range stamps {
		if !ts.Before(cutoff) && !ts.After(now) {
			kept = append(kept, ts)
		}
	}
	return kept
}
