package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuotaResult is the outcome of a daily quota check.
type QuotaResult struct {
	Allowed bool
	Used    int64
	Limit   int64
}

// DailyQuota caps the number of turns a tenant may submit per UTC day.
// Counters live in Redis only; without Redis every check passes.
type DailyQuota struct {
	rdb *redis.Client
	now func() time.Time
}

func NewDailyQuota(rdb *redis.Client) *DailyQuota {
	return &DailyQuota{rdb: rdb, now: time.Now}
}

func (q *DailyQuota) key(tenantID string) string {
	day := q.now().UTC().Format(time.DateOnly)
	return fmt.Sprintf("careguard:quota:daily:%s:%s", tenantID, day)
}

// Check reports whether the tenant is under limit for today.
func (q *DailyQuota) Check(ctx context.Context, tenantID string, limit int64) (QuotaResult, error) {
	if q.rdb == nil || limit <= 0 {
		return QuotaResult{Allowed: true, Limit: limit}, nil
	}

	used, err := q.rdb.Get(ctx, q.key(tenantID)).Int64()
	if err != nil && err != redis.Nil {
		// Fail open on Redis errors; the per-user limiter still applies.
		return QuotaResult{Allowed: true, Limit: limit}, err
	}
	return QuotaResult{Allowed: used < limit, Used: used, Limit: limit}, nil
}

// Record counts one turn against the tenant's quota for today.
func (q *DailyQuota) Record(ctx context.Context, tenantID string) error {
	if q.rdb == nil {
		return nil
	}

	now := q.now().UTC()
	key := q.key(tenantID)
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

	pipe := q.rdb.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, endOfDay.Sub(now)+time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}
