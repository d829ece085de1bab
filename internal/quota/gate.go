// Package quota decides whether a pending upload fits under the block threshold.
package quota

import (
	"imguard/internal/domain"
)

// Gate projects pending uploads onto a usage snapshot.
type Gate struct {
	threshold float64
}

// NewGate creates a Gate that refuses any dimension whose projected
// percentage is strictly greater than threshold (0-100).
func NewGate(threshold float64) *Gate {
	return &Gate{threshold: threshold}
}

// Evaluate projects one upload of pendingBytes onto snapshot. A PUT costs one
// class A operation; class B is unaffected. Every exceeded dimension is
// reported, in reporting order.
func (g *Gate) Evaluate(snapshot *domain.UsageSnapshot, pendingBytes int64) *domain.QuotaDecision {
	projected := snapshot.Totals.Add(domain.UploadDelta(pendingBytes))

	decision := &domain.QuotaDecision{
		Threshold: g.threshold,
		Exceeded:  []domain.Dimension{},
		Projected: snapshot.WithTotals(projected),
	}
	for _, dim := range domain.Dimensions {
		p := domain.DimensionProjection{
			Dimension: dim,
			Current:   snapshot.Totals.Get(dim),
			Projected: projected.Get(dim),
			Limit:     snapshot.Limits.Get(dim),
		}
		p.Percentage = domain.Percentage(p.Current, p.Limit)
		p.ProjectedPercentage = domain.Percentage(p.Projected, p.Limit)
		p.Exceeded = p.ProjectedPercentage > g.threshold
		if p.Exceeded {
			decision.Exceeded = append(decision.Exceeded, dim)
		}
		decision.Projections = append(decision.Projections, p)
	}
	decision.CanProceed = len(decision.Exceeded) == 0
	return decision
}

// ShouldBlock reports whether the smallest possible upload would be refused.
func (g *Gate) ShouldBlock(snapshot *domain.UsageSnapshot) bool {
	return !g.Evaluate(snapshot, 1).CanProceed
}
