package domain

import "time"

// StoredObject is the artifact written to the blob store for an accepted upload.
type StoredObject struct {
	Key          string            `json:"key"`
	URL          string            `json:"url"`
	ContentType  MediaType         `json:"content_type"`
	Size         int64             `json:"size"`
	OriginalName string            `json:"original_name"`
	UploadedBy   string            `json:"uploaded_by"`
	UploadedAt   time.Time         `json:"uploaded_at"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// UsageTotals holds raw counter values for one billing period.
type UsageTotals struct {
	StorageBytes int64 `json:"storage_bytes"`
	ClassAOps    int64 `json:"class_a_ops"`
	ClassBOps    int64 `json:"class_b_ops"`
}

// Get returns the counter for a dimension.
func (t UsageTotals) Get(d Dimension) int64 {
	switch d {
	case DimensionStorage:
		return t.StorageBytes
	case DimensionClassA:
		return t.ClassAOps
	case DimensionClassB:
		return t.ClassBOps
	}
	return 0
}

// Add returns the element-wise sum of two totals.
func (t UsageTotals) Add(o UsageTotals) UsageTotals {
	return UsageTotals{
		StorageBytes: t.StorageBytes + o.StorageBytes,
		ClassAOps:    t.ClassAOps + o.ClassAOps,
		ClassBOps:    t.ClassBOps + o.ClassBOps,
	}
}

// UploadDelta is the usage a single accepted upload generates: its bytes and
// exactly one class A (PUT) operation.
func UploadDelta(sizeBytes int64) UsageTotals {
	return UsageTotals{StorageBytes: sizeBytes, ClassAOps: 1}
}

// QuotaLimits holds the configured hard limit for each dimension.
type QuotaLimits struct {
	StorageBytes int64 `json:"storage_bytes"`
	ClassAOps    int64 `json:"class_a_ops"`
	ClassBOps    int64 `json:"class_b_ops"`
}

// Get returns the limit for a dimension.
func (l QuotaLimits) Get(d Dimension) int64 {
	switch d {
	case DimensionStorage:
		return l.StorageBytes
	case DimensionClassA:
		return l.ClassAOps
	case DimensionClassB:
		return l.ClassBOps
	}
	return 0
}

// Percentage returns value as a percentage of limit. A non-positive limit is
// reported as fully consumed.
func Percentage(value, limit int64) float64 {
	if limit <= 0 {
		return 100
	}
	return float64(value) / float64(limit) * 100
}

// Period is a calendar-month billing period in UTC. Usage resets at Start.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// PeriodFor returns the calendar month containing t.
func PeriodFor(t time.Time) Period {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// Key identifies the period in counter keys, e.g. "2026-10".
func (p Period) Key() string {
	return p.Start.Format("2006-01")
}

// Contains reports whether t falls within [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// UsageSnapshot is a point-in-time read of all usage counters for a period.
// Fallback snapshots are synthesized when the real source failed; Error then
// carries the reason.
type UsageSnapshot struct {
	Totals    UsageTotals `json:"totals"`
	Limits    QuotaLimits `json:"limits"`
	Period    Period      `json:"period"`
	Source    string      `json:"source"`
	FetchedAt time.Time   `json:"fetched_at"`
	Fallback  bool        `json:"fallback"`
	Error     string      `json:"error,omitempty"`
}

// Percent returns current usage of a dimension as a percentage of its limit.
func (s *UsageSnapshot) Percent(d Dimension) float64 {
	return Percentage(s.Totals.Get(d), s.Limits.Get(d))
}

// WithTotals returns a copy of the snapshot carrying different totals.
func (s *UsageSnapshot) WithTotals(t UsageTotals) *UsageSnapshot {
	cp := *s
	cp.Totals = t
	return &cp
}

// DimensionProjection is the quota evaluation of one dimension.
type DimensionProjection struct {
	Dimension           Dimension `json:"dimension"`
	Current             int64     `json:"current"`
	Projected           int64     `json:"projected"`
	Limit               int64     `json:"limit"`
	Percentage          float64   `json:"percentage"`
	ProjectedPercentage float64   `json:"projected_percentage"`
	Exceeded            bool      `json:"exceeded"`
}

// QuotaDecision is the outcome of projecting a pending upload onto a snapshot.
type QuotaDecision struct {
	CanProceed  bool                  `json:"can_proceed"`
	Exceeded    []Dimension           `json:"exceeded"`
	Threshold   float64               `json:"threshold"`
	Projections []DimensionProjection `json:"projections"`
	Projected   *UsageSnapshot        `json:"projected"`
}

// Projection returns the evaluation for one dimension.
func (d *QuotaDecision) Projection(dim Dimension) DimensionProjection {
	for _, p := range d.Projections {
		if p.Dimension == dim {
			return p
		}
	}
	return DimensionProjection{Dimension: dim}
}
