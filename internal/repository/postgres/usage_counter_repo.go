package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"imguard/internal/domain"
	"imguard/internal/port"
)

type usageCounterRow struct {
	Dimension string `db:"dimension"`
	Value     int64  `db:"value"`
}

// UsageCounterRepo stores monthly totals in the usage_counters table.
type UsageCounterRepo struct {
	db *sqlx.DB
}

var (
	_ port.UsageSource   = (*UsageCounterRepo)(nil)
	_ port.UsageRecorder = (*UsageCounterRepo)(nil)
	_ port.Pinger        = (*UsageCounterRepo)(nil)
)

// NewUsageCounterRepo creates a new PostgreSQL-backed usage counter.
func NewUsageCounterRepo(db *sqlx.DB) *UsageCounterRepo {
	return &UsageCounterRepo{db: db}
}

func (r *UsageCounterRepo) Name() string {
	return string(domain.UsageStrategyPostgres)
}

func (r *UsageCounterRepo) Totals(ctx context.Context, period domain.Period) (domain.UsageTotals, error) {
	var rows []usageCounterRow
	err := r.db.SelectContext(ctx, &rows,
		"SELECT dimension, value FROM usage_counters WHERE period = $1", period.Key())
	if err != nil {
		return domain.UsageTotals{}, Error.New("usageCounterRepo.Totals: %v", err)
	}

	var totals domain.UsageTotals
	for _, row := range rows {
		switch domain.Dimension(row.Dimension) {
		case domain.DimensionStorage:
			totals.StorageBytes = row.Value
		case domain.DimensionClassA:
			totals.ClassAOps = row.Value
		case domain.DimensionClassB:
			totals.ClassBOps = row.Value
		}
	}
	return totals, nil
}

func (r *UsageCounterRepo) Increment(ctx context.Context, period domain.Period, delta domain.UsageTotals) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Error.New("usageCounterRepo.Increment begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	query := `INSERT INTO usage_counters (period, dimension, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (period, dimension)
		DO UPDATE SET value = usage_counters.value + EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	for _, dim := range domain.Dimensions {
		n := delta.Get(dim)
		if n == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, query, period.Key(), string(dim), n, now); err != nil {
			return Error.New("usageCounterRepo.Increment %s: %v", dim, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Error.New("usageCounterRepo.Increment commit: %v", err)
	}
	return nil
}

func (r *UsageCounterRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return Error.Wrap(err)
	}
	return nil
}
