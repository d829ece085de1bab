package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"imguard/internal/config"
	"imguard/internal/domain"
	"imguard/internal/metrics"
	"imguard/internal/port"
	"imguard/internal/quota"
)

// UsageService reads usage snapshots and records accepted uploads.
type UsageService interface {
	// Snapshot never fails. When the source errors or times out the result
	// is a fallback snapshot with Fallback set.
	Snapshot(ctx context.Context) *domain.UsageSnapshot
	RecordUpload(ctx context.Context, sizeBytes int64) error
	Realtime() bool
	Report(ctx context.Context) *UsageReport
	Ping(ctx context.Context) error
}

// UsageReport is the body of GET /usage.
type UsageReport struct {
	Usage UsageReportBody `json:"usage"`
}

// UsageReportBody holds the per-dimension breakdown and advisory flags.
type UsageReportBody struct {
	Storage            StorageUsage   `json:"storage"`
	ClassA             OperationUsage `json:"classA"`
	ClassB             OperationUsage `json:"classB"`
	Warnings           []string       `json:"warnings"`
	ShouldBlockUploads bool           `json:"shouldBlockUploads"`
	LastUpdated        time.Time      `json:"lastUpdated"`
	Period             UsagePeriod    `json:"period"`
	Source             string         `json:"source"`
	Fallback           bool           `json:"fallback"`
}

// StorageUsage reports storage in gibibytes.
type StorageUsage struct {
	CurrentGB  float64 `json:"currentGB"`
	Limit      float64 `json:"limit"`
	Percentage float64 `json:"percentage"`
}

// OperationUsage reports an operation counter.
type OperationUsage struct {
	CurrentValue int64   `json:"currentValue"`
	Limit        int64   `json:"limit"`
	Percentage   float64 `json:"percentage"`
}

// UsagePeriod is the billing month the report covers.
type UsagePeriod struct {
	Key   string    `json:"key"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// UsageSummary is the human-readable usage attached to upload responses.
type UsageSummary struct {
	Storage string `json:"storage"`
	ClassA  string `json:"classA"`
	ClassB  string `json:"classB"`
}

type usageService struct {
	source   port.UsageSource
	limits   domain.QuotaLimits
	cfg      *config.QuotaConfig
	timeout  time.Duration
	gate     *quota.Gate
	observer metrics.Observer
	log      *zap.Logger
	now      func() time.Time
}

// NewUsageService creates a UsageService over source.
func NewUsageService(
	source port.UsageSource,
	cfg *config.QuotaConfig,
	timeout time.Duration,
	observer metrics.Observer,
	log *zap.Logger,
) UsageService {
	return newUsageService(source, cfg, timeout, observer, log, time.Now)
}

func newUsageService(
	source port.UsageSource,
	cfg *config.QuotaConfig,
	timeout time.Duration,
	observer metrics.Observer,
	log *zap.Logger,
	now func() time.Time,
) *usageService {
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &usageService{
		source:   source,
		limits:   LimitsFrom(cfg),
		cfg:      cfg,
		timeout:  timeout,
		gate:     quota.NewGate(cfg.BlockThreshold),
		observer: observer,
		log:      log,
		now:      now,
	}
}

// LimitsFrom converts the quota configuration into domain limits.
func LimitsFrom(cfg *config.QuotaConfig) domain.QuotaLimits {
	return domain.QuotaLimits{
		StorageBytes: cfg.StorageLimitBytes,
		ClassAOps:    cfg.ClassALimit,
		ClassBOps:    cfg.ClassBLimit,
	}
}

type totalsResult struct {
	totals domain.UsageTotals
	err    error
}

func (s *usageService) Snapshot(ctx context.Context) *domain.UsageSnapshot {
	now := s.now().UTC()
	period := domain.PeriodFor(now)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// The read runs in its own goroutine so a source that ignores ctx still
	// cannot hold the request past the timeout.
	done := make(chan totalsResult, 1)
	go func() {
		totals, err := s.source.Totals(ctx, period)
		done <- totalsResult{totals: totals, err: err}
	}()

	var res totalsResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = fmt.Errorf("%w: %s read: %w", domain.ErrUsageUnavailable, s.source.Name(), ctx.Err())
	}
	if res.err == nil {
		res.err = checkTotals(res.totals)
	}
	s.observer.RecordUsageRead(s.source.Name(), s.now().Sub(now), res.err)

	if res.err != nil {
		s.observer.RecordUsageFallback(s.source.Name())
		s.log.Warn("usage source failed; using conservative fallback",
			zap.String("source", s.source.Name()),
			zap.Float64("assumed_percent", s.cfg.FallbackPercent),
			zap.Error(res.err))
		return s.fallback(period, now, res.err)
	}

	return &domain.UsageSnapshot{
		Totals:    res.totals,
		Limits:    s.limits,
		Period:    period,
		Source:    s.source.Name(),
		FetchedAt: now,
	}
}

func checkTotals(t domain.UsageTotals) error {
	for _, dim := range domain.Dimensions {
		if t.Get(dim) < 0 {
			return fmt.Errorf("%w: negative %s counter", domain.ErrUsageUnavailable, dim)
		}
	}
	return nil
}

// fallback assumes every dimension sits at FallbackPercent of its limit so
// that a failing source biases toward refusing uploads.
func (s *usageService) fallback(period domain.Period, now time.Time, cause error) *domain.UsageSnapshot {
	assumed := func(limit int64) int64 {
		return int64(math.Ceil(float64(limit) * s.cfg.FallbackPercent / 100))
	}
	return &domain.UsageSnapshot{
		Totals: domain.UsageTotals{
			StorageBytes: assumed(s.limits.StorageBytes),
			ClassAOps:    assumed(s.limits.ClassAOps),
			ClassBOps:    assumed(s.limits.ClassBOps),
		},
		Limits:    s.limits,
		Period:    period,
		Source:    s.source.Name(),
		FetchedAt: now,
		Fallback:  true,
		Error:     cause.Error(),
	}
}

// RecordUpload increments the counters after a confirmed write. Read-only
// sources ignore it.
func (s *usageService) RecordUpload(ctx context.Context, sizeBytes int64) error {
	recorder, ok := s.source.(port.UsageRecorder)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return recorder.Increment(ctx, domain.PeriodFor(s.now()), domain.UploadDelta(sizeBytes))
}

// Realtime reports whether an increment is visible to the next read.
func (s *usageService) Realtime() bool {
	_, ok := s.source.(port.UsageRecorder)
	return ok
}

func (s *usageService) Ping(ctx context.Context) error {
	pinger, ok := s.source.(port.Pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return pinger.Ping(ctx)
}

func (s *usageService) Report(ctx context.Context) *UsageReport {
	snap := s.Snapshot(ctx)

	body := UsageReportBody{
		Storage: StorageUsage{
			CurrentGB:  round(float64(snap.Totals.StorageBytes)/float64(1<<30), 4),
			Limit:      round(float64(snap.Limits.StorageBytes)/float64(1<<30), 4),
			Percentage: round(snap.Percent(domain.DimensionStorage), 2),
		},
		ClassA: OperationUsage{
			CurrentValue: snap.Totals.ClassAOps,
			Limit:        snap.Limits.ClassAOps,
			Percentage:   round(snap.Percent(domain.DimensionClassA), 2),
		},
		ClassB: OperationUsage{
			CurrentValue: snap.Totals.ClassBOps,
			Limit:        snap.Limits.ClassBOps,
			Percentage:   round(snap.Percent(domain.DimensionClassB), 2),
		},
		Warnings:           s.warnings(snap),
		ShouldBlockUploads: s.gate.ShouldBlock(snap),
		LastUpdated:        snap.FetchedAt,
		Period: UsagePeriod{
			Key:   snap.Period.Key(),
			Start: snap.Period.Start,
			End:   snap.Period.End,
		},
		Source:   snap.Source,
		Fallback: snap.Fallback,
	}
	return &UsageReport{Usage: body}
}

var dimensionLabels = map[domain.Dimension]string{
	domain.DimensionStorage: "Storage",
	domain.DimensionClassA:  "Class A operations",
	domain.DimensionClassB:  "Class B operations",
}

func (s *usageService) warnings(snap *domain.UsageSnapshot) []string {
	warnings := []string{}
	if snap.Fallback {
		warnings = append(warnings, fmt.Sprintf(
			"Usage data is unavailable from %s; assuming %.0f%% of every limit until it recovers",
			snap.Source, s.cfg.FallbackPercent))
	}
	for _, dim := range domain.Dimensions {
		pct := snap.Percent(dim)
		switch {
		case pct > s.cfg.BlockThreshold:
			warnings = append(warnings, fmt.Sprintf("%s at %.1f%% exceeds the %.0f%% upload threshold",
				dimensionLabels[dim], pct, s.cfg.BlockThreshold))
		case pct >= s.cfg.WarningThreshold:
			warnings = append(warnings, fmt.Sprintf("%s at %.1f%% is approaching the %.0f%% upload threshold",
				dimensionLabels[dim], pct, s.cfg.BlockThreshold))
		}
	}
	return warnings
}

// Summarize renders a snapshot as human-readable strings.
func Summarize(snap *domain.UsageSnapshot) UsageSummary {
	return UsageSummary{
		Storage: fmt.Sprintf("%s of %s (%.2f%%)",
			humanize.IBytes(uint64(max(snap.Totals.StorageBytes, 0))),
			humanize.IBytes(uint64(max(snap.Limits.StorageBytes, 0))),
			snap.Percent(domain.DimensionStorage)),
		ClassA: fmt.Sprintf("%s of %s operations (%.2f%%)",
			humanize.Comma(snap.Totals.ClassAOps), humanize.Comma(snap.Limits.ClassAOps),
			snap.Percent(domain.DimensionClassA)),
		ClassB: fmt.Sprintf("%s of %s operations (%.2f%%)",
			humanize.Comma(snap.Totals.ClassBOps), humanize.Comma(snap.Limits.ClassBOps),
			snap.Percent(domain.DimensionClassB)),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
