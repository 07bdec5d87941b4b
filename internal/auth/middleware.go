package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wellbridge/careguard/internal/httputil"
	"github.com/wellbridge/careguard/internal/types"
)

// TenantResolver is satisfied by *Resolver.
type TenantResolver interface {
	Resolve(ctx context.Context, r *http.Request) (types.TenantContext, error)
}

// TenantEnsurer is satisfied by *TenantDirectory.
type TenantEnsurer interface {
	Ensure(ctx context.Context, tenantID string) error
}

// Middleware returns a chi middleware that resolves the TenantContext of
// every request and rejects the request when none can be resolved.
func Middleware(resolver TenantResolver, tenants TenantEnsurer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			tc, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				writeResolveError(w, reqID, err)
				return
			}

			if tenants != nil {
				if err := tenants.Ensure(r.Context(), tc.TenantID); err != nil {
					slog.Error("tenant registration failed", "request_id", reqID, "tenant_id", tc.TenantID, "error", err)
					httputil.WriteServiceUnavailableError(w, reqID, "Tenant directory unavailable")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ContextWithTenant(r.Context(), tc)))
		})
	}
}

func writeResolveError(w http.ResponseWriter, reqID string, err error) {
	switch {
	case errors.Is(err, ErrAmbiguousIdentity):
		slog.Warn("auth rejected: ambiguous identity", "request_id", reqID)
		httputil.WriteForbiddenError(w, reqID, "Send either an identity token or a service key, not both")
	case errors.Is(err, ErrNoTenant):
		slog.Warn("auth rejected: no tenant", "request_id", reqID)
		httputil.WriteForbiddenError(w, reqID, "No tenant could be resolved for this request")
	case errors.Is(err, ErrNoCredentials):
		httputil.WriteAuthError(w, reqID, "Missing credentials. Use: Authorization: Bearer <identity-token>")
	case errors.Is(err, ErrInvalidToken):
		slog.Warn("auth rejected: invalid token", "request_id", reqID, "error", err)
		httputil.WriteAuthError(w, reqID, "Invalid identity token")
	case errors.Is(err, ErrInvalidServiceKey):
		slog.Warn("auth rejected: invalid service key", "request_id", reqID)
		httputil.WriteAuthError(w, reqID, "Invalid service key")
	default:
		slog.Error("tenant resolution failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Internal error during authentication")
	}
}
