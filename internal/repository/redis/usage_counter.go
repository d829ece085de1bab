// Package redis implements the usage counter on a shared redis instance so
// every replica increments and reads the same monthly totals.
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"

	"imguard/internal/domain"
	"imguard/internal/port"
)

// Error is the error class for redis counter failures.
var Error = errs.Class("redis usage counter")

// keyTTL keeps a month's keys around a little past the end of the period.
const keyTTL = 40 * 24 * time.Hour

// UsageCounter stores one integer key per period and dimension.
type UsageCounter struct {
	client *redis.Client
	prefix string
}

var (
	_ port.UsageSource   = (*UsageCounter)(nil)
	_ port.UsageRecorder = (*UsageCounter)(nil)
	_ port.Pinger        = (*UsageCounter)(nil)
)

// Open parses a redis:// URL and returns a counter backed by it. The
// connection is not verified; use Ping for that.
func Open(rawURL string) (*UsageCounter, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return NewUsageCounter(redis.NewClient(opts)), nil
}

// NewUsageCounter wraps an existing client.
func NewUsageCounter(client *redis.Client) *UsageCounter {
	return &UsageCounter{client: client, prefix: "imguard:usage"}
}

// Name identifies the strategy in snapshots and logs.
func (c *UsageCounter) Name() string {
	return string(domain.UsageStrategyRedis)
}

func (c *UsageCounter) key(period domain.Period, dim domain.Dimension) string {
	return c.prefix + ":" + period.Key() + ":" + string(dim)
}

// Totals reads all dimensions of period in one round trip. Missing keys read as zero.
func (c *UsageCounter) Totals(ctx context.Context, period domain.Period) (domain.UsageTotals, error) {
	keys := make([]string, len(domain.Dimensions))
	for i, dim := range domain.Dimensions {
		keys[i] = c.key(period, dim)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return domain.UsageTotals{}, Error.Wrap(err)
	}

	var totals domain.UsageTotals
	for i, raw := range vals {
		if raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return domain.UsageTotals{}, Error.New("unexpected value type %T for %s", raw, keys[i])
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return domain.UsageTotals{}, Error.New("parsing %s: %v", keys[i], err)
		}
		switch domain.Dimensions[i] {
		case domain.DimensionStorage:
			totals.StorageBytes = n
		case domain.DimensionClassA:
			totals.ClassAOps = n
		case domain.DimensionClassB:
			totals.ClassBOps = n
		}
	}
	return totals, nil
}

// Increment atomically adds delta to every non-zero dimension of period and
// refreshes the key expiry.
func (c *UsageCounter) Increment(ctx context.Context, period domain.Period, delta domain.UsageTotals) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, dim := range domain.Dimensions {
			n := delta.Get(dim)
			if n == 0 {
				continue
			}
			key := c.key(period, dim)
			pipe.IncrBy(ctx, key, n)
			pipe.Expire(ctx, key, keyTTL)
		}
		return nil
	})
	return Error.Wrap(err)
}

// Ping checks that redis is reachable.
func (c *UsageCounter) Ping(ctx context.Context) error {
	return Error.Wrap(c.client.Ping(ctx).Err())
}

// Close releases the underlying connection pool.
func (c *UsageCounter) Close() error {
	return Error.Wrap(c.client.Close())
}
