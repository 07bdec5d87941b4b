package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/wellbridge/careguard/internal/auth"
	"github.com/wellbridge/careguard/internal/config"
	"github.com/wellbridge/careguard/internal/httputil"
	"github.com/wellbridge/careguard/internal/telemetry"
)

const (
	headerRateLimit          = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
	headerRetryAfter         = "Retry-After"
)

// Middleware enforces the per-user turn limit and the optional per-tenant
// daily quota. It must run after the auth middleware.
func Middleware(limiter *Limiter, quota *DailyQuota, cfg func() config.RateLimitConfig, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := cfg()
			if !c.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			reqID := w.Header().Get("X-Request-ID")

			tc, ok := auth.TenantFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			limit := c.TurnsPerWindow
			if limit <= 0 {
				limit = 30
			}
			window := c.Window
			if window <= 0 {
				window = time.Minute
			}

			key := fmt.Sprintf("turns:%s:%s", tc.TenantID, tc.UserID)
			result, err := limiter.Check(r.Context(), key, int64(limit), window)
			if err != nil {
				slog.Warn("rate limit check failed", "request_id", reqID, "error", err)
			}

			w.Header().Set(headerRateLimit, strconv.Itoa(limit))
			w.Header().Set(headerRateLimitRemaining, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"tenant_id", tc.TenantID,
					"user_id", tc.UserID,
					"dimension", "turns",
					"limit", limit,
				)
				metrics.RecordRateLimitHit("turns")
				w.Header().Set(headerRetryAfter, strconv.Itoa(max(int(result.RetryAfter.Seconds()), 1)))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Too many messages: %d per %s. Please wait a moment.", limit, window))
				return
			}

			if c.TenantDailyTurns > 0 {
				q, err := quota.Check(r.Context(), tc.TenantID, int64(c.TenantDailyTurns))
				if err != nil {
					slog.Warn("daily quota check failed", "request_id", reqID, "error", err)
				}
				if !q.Allowed {
					slog.Warn("tenant daily quota exceeded",
						"request_id", reqID,
						"tenant_id", tc.TenantID,
						"used", q.Used,
						"limit", q.Limit,
					)
					metrics.RecordRateLimitHit("tenant_daily")
					httputil.WriteRateLimitError(w, reqID, "Your organization has reached today's message limit.")
					return
				}
				if err := quota.Record(r.Context(), tc.TenantID); err != nil {
					slog.Warn("daily quota record failed", "request_id", reqID, "error", err)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
