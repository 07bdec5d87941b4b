package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// LimitResult is the outcome of a rate limit check.
type LimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

const maxLocalBuckets = 10_000

// Limiter performs sliding-window rate limiting backed by Redis sorted sets.
// Without Redis, or when Redis fails, it falls back to an in-process token
// bucket per key, so limits hold per replica rather than not at all.
type Limiter struct {
	rdb *redis.Client

	mu    sync.Mutex
	local map[string]*localBucket
}

type localBucket struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// NewLimiter creates a rate limiter. rdb may be nil.
func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb, local: make(map[string]*localBucket)}
}

// slidingWindowScript atomically removes expired entries, adds the current
// request when under the limit, and returns [count, allowed].
// KEYS[1] = sorted set key
// ARGV[1] = window start (unix micro)
// ARGV[2] = now (unix micro)
// ARGV[3] = limit
// ARGV[4] = TTL seconds for the key
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('EXPIRE', key, ttl)
    return {count + 1, 1}
end

redis.call('EXPIRE', key, ttl)
return {count, 0}
`)

// Check counts one request against key, allowing at most limit per window.
func (l *Limiter) Check(ctx context.Context, key string, limit int64, window time.Duration) (LimitResult, error) {
	if l.rdb == nil {
		return l.checkLocal(key, limit, window), nil
	}

	now := time.Now()
	windowStart := now.Add(-window).UnixMicro()
	ttlSecs := int64(window.Seconds()) + 1

	result, err := slidingWindowScript.Run(ctx, l.rdb, []string{"careguard:rl:" + key},
		windowStart, now.UnixMicro(), limit, ttlSecs,
	).Int64Slice()
	if err != nil {
		slog.Warn("redis rate limit check failed, using local limiter", "key", key, "error", err)
		return l.checkLocal(key, limit, window), nil
	}
	if len(result) != 2 {
		return l.checkLocal(key, limit, window), fmt.Errorf("unexpected rate limit script result %v", result)
	}

	count := result[0]
	allowed := result[1] == 1
	remaining := max(limit-count, 0)

	var retryAfter time.Duration
	if !allowed {
		retryAfter = window / 2
	}
	return LimitResult{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetAt:    now.Add(window),
		RetryAfter: retryAfter,
	}, nil
}

// checkLocal spreads limit evenly across window with a burst of limit.
func (l *Limiter) checkLocal(key string, limit int64, window time.Duration) LimitResult {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.local[key]
	if !ok {
		if len(l.local) >= maxLocalBuckets {
			l.pruneLocked(now, window)
		}
		b = &localBucket{lim: rate.NewLimiter(rate.Every(window/time.Duration(max(limit, 1))), int(limit))}
		l.local[key] = b
	}
	b.lastUsed = now
	l.mu.Unlock()

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return LimitResult{ResetAt: now.Add(window), RetryAfter: window}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return LimitResult{ResetAt: now.Add(delay), RetryAfter: delay}
	}
	remaining := max(int64(b.lim.TokensAt(now)), 0)
	return LimitResult{Allowed: true, Remaining: remaining, ResetAt: now.Add(window)}
}

func (l *Limiter) pruneLocked(now time.Time, window time.Duration) {
	for k, b := range l.local {
		if now.Sub(b.lastUsed) > window {
			delete(l.local, k)
		}
	}
}
