// Package memory implements the in-process usage counter. Totals live for the
// lifetime of the process only and are not coordinated with other instances;
// run the redis or postgres strategy when more than one replica serves uploads.
package memory

import (
	"context"
	"sync"

	"imguard/internal/domain"
	"imguard/internal/port"
)

// UsageCounter keeps per-period totals in a mutex-guarded map.
type UsageCounter struct {
	mu     sync.RWMutex
	totals map[string]domain.UsageTotals
}

var (
	_ port.UsageSource   = (*UsageCounter)(nil)
	_ port.UsageRecorder = (*UsageCounter)(nil)
)

// NewUsageCounter creates an empty counter.
func NewUsageCounter() *UsageCounter {
	return &UsageCounter{totals: make(map[string]domain.UsageTotals)}
}

// Name identifies the strategy in snapshots and logs.
func (c *UsageCounter) Name() string {
	return string(domain.UsageStrategyMemory)
}

// Totals returns the accumulated totals for period. Unknown periods read as zero.
func (c *UsageCounter) Totals(ctx context.Context, period domain.Period) (domain.UsageTotals, error) {
	if err := ctx.Err(); err != nil {
		return domain.UsageTotals{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totals[period.Key()], nil
}

// Increment adds delta to the totals of period. Earlier periods are dropped
// once a later one is written.
func (c *UsageCounter) Increment(ctx context.Context, period domain.Period, delta domain.UsageTotals) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := period.Key()

	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.totals {
		if k < key {
			delete(c.totals, k)
		}
	}
	c.totals[key] = c.totals[key].Add(delta)
	return nil
}
