package auth

import (
	"context"

	"github.com/wellbridge/careguard/internal/types"
)

type contextKey string

const tenantContextKey contextKey = "careguard_tenant"

// ContextWithTenant is used by the HTTP middleware only. Everything below the
// HTTP layer receives the TenantContext as an explicit argument.
func ContextWithTenant(ctx context.Context, tc types.TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey, tc)
}

func TenantFromContext(ctx context.Context) (types.TenantContext, bool) {
	tc, ok := ctx.Value(tenantContextKey).(types.TenantContext)
	return tc, ok && tc.Valid()
}
