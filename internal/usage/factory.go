// Package usage selects the configured usage source.
package usage

import (
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"imguard/internal/analytics"
	"imguard/internal/config"
	"imguard/internal/domain"
	"imguard/internal/port"
	"imguard/internal/repository/memory"
	"imguard/internal/repository/postgres"
	usageredis "imguard/internal/repository/redis"
)

// Source is an opened usage source and the function that releases it.
// Optional capabilities are checked on the embedded UsageSource, so hand
// that field, not the Source, to consumers.
type Source struct {
	port.UsageSource
	Close func() error
}

// Open creates the usage source named by cfg.Usage.Strategy. An empty
// strategy selects the in-process counter.
func Open(cfg *config.Config, log *zap.Logger) (*Source, error) {
	noop := func() error { return nil }

	switch domain.UsageStrategy(cfg.Usage.Strategy) {
	case "", domain.UsageStrategyMemory:
		log.Warn("usage strategy memory keeps totals in process; they reset on restart and are not shared between replicas")
		return &Source{UsageSource: memory.NewUsageCounter(), Close: noop}, nil

	case domain.UsageStrategyRedis:
		counter, err := usageredis.Open(cfg.Usage.RedisURL)
		if err != nil {
			return nil, err
		}
		return &Source{UsageSource: counter, Close: counter.Close}, nil

	case domain.UsageStrategyPostgres:
		db, err := postgres.NewDB(&cfg.DB)
		if err != nil {
			return nil, err
		}
		return &Source{UsageSource: postgres.NewUsageCounterRepo(db), Close: db.Close}, nil

	case domain.UsageStrategyAnalytics:
		client := analytics.New(analytics.Config{
			Endpoint:  cfg.Usage.AnalyticsEndpoint,
			AccountID: cfg.Usage.AnalyticsAccount,
			Token:     cfg.Usage.AnalyticsToken,
			Bucket:    cfg.Usage.AnalyticsBucket,
		}, log.Named("analytics"))
		return &Source{UsageSource: client, Close: noop}, nil

	default:
		return nil, errs.New("unrecognized usage strategy %q", cfg.Usage.Strategy)
	}
}
