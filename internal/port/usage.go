package port

import (
	"context"

	"imguard/internal/domain"
)

// UsageSource reads accumulated usage for a billing period. Every strategy
// implements it.
type UsageSource interface {
	Name() string
	Totals(ctx context.Context, period domain.Period) (domain.UsageTotals, error)
}

// UsageRecorder is implemented by counter strategies that can be incremented
// after a confirmed write. Sources without it only support reads.
type UsageRecorder interface {
	Increment(ctx context.Context, period domain.Period, delta domain.UsageTotals) error
}

// Pinger is implemented by sources backed by a remote service whose
// reachability can be checked cheaply.
type Pinger interface {
	Ping(ctx context.Context) error
}
