package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wellbridge/careguard/internal/config"
	"github.com/wellbridge/careguard/internal/types"
)

const (
	HeaderServiceKey = "X-Service-Key"
	HeaderTenantID   = "X-Tenant-ID"
	HeaderUserID     = "X-User-ID"
)

var (
	ErrNoCredentials     = errors.New("auth: no credentials presented")
	ErrInvalidToken      = errors.New("auth: invalid identity token")
	ErrInvalidServiceKey = errors.New("auth: invalid service key")
	ErrNoTenant          = errors.New("auth: no tenant could be resolved")
	ErrAmbiguousIdentity = errors.New("auth: identity token and override parameters presented together")
)

// Resolver derives the TenantContext of one request from either a verified
// identity token or a service key with explicit override headers, never both.
type Resolver struct {
	cfg     config.AuthConfig
	keys    KeyStore
	jwks    *JWKSCache
	methods []string
	now     func() time.Time
}

func NewResolver(cfg config.AuthConfig, keys KeyStore, jwks *JWKSCache) *Resolver {
	var methods []string
	if cfg.HMACSecret != "" {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if jwks != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	return &Resolver{cfg: cfg, keys: keys, jwks: jwks, methods: methods, now: time.Now}
}

// Resolve fails closed: any error means no data access may happen.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (types.TenantContext, error) {
	bearer, hasBearer := bearerToken(req)
	serviceKey := strings.TrimSpace(req.Header.Get(HeaderServiceKey))
	override := req.Header.Get(HeaderTenantID) != "" || req.Header.Get(HeaderUserID) != ""

	switch {
	case hasBearer && (serviceKey != "" || override):
		return types.TenantContext{}, ErrAmbiguousIdentity
	case hasBearer:
		return r.fromToken(ctx, bearer)
	case serviceKey != "":
		return r.fromServiceKey(ctx, req, serviceKey)
	case override:
		return types.TenantContext{}, ErrInvalidServiceKey
	case r.cfg.DevMode:
		return r.devIdentity()
	default:
		return types.TenantContext{}, ErrNoCredentials
	}
}

func bearerToken(req *http.Request) (string, bool) {
	h := req.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		// A malformed header still counts as a presented credential.
		return "", true
	}
	return strings.TrimSpace(token), true
}

func (r *Resolver) fromToken(ctx context.Context, raw string) (types.TenantContext, error) {
	if raw == "" || len(r.methods) == 0 {
		return types.TenantContext{}, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(r.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(r.cfg.ClockSkewLeeway),
		jwt.WithTimeFunc(r.now),
	}
	if r.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.cfg.Issuer))
	}
	if r.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(r.cfg.Audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return []byte(r.cfg.HMACSecret), nil
		case *jwt.SigningMethodRSA:
			kid, _ := t.Header["kid"].(string)
			return r.jwks.Key(ctx, kid)
		default:
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
	})
	if err != nil {
		return types.TenantContext{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return types.TenantContext{}, ErrInvalidToken
	}
	tenant, _ := claims[r.cfg.TenantClaim].(string)
	tc := types.TenantContext{
		TenantID: strings.TrimSpace(tenant),
		UserID:   sub,
		Role:     normalizeRole(claims[r.cfg.RoleClaim]),
	}
	if !tc.Valid() {
		return types.TenantContext{}, ErrNoTenant
	}
	return tc, nil
}

func (r *Resolver) fromServiceKey(ctx context.Context, req *http.Request, key string) (types.TenantContext, error) {
	if !r.cfg.ServiceKeysOn || r.keys == nil || !WellFormedKey(key) {
		return types.TenantContext{}, ErrInvalidServiceKey
	}
	meta, err := r.keys.Lookup(ctx, HashKey(key))
	if err != nil {
		return types.TenantContext{}, fmt.Errorf("service key lookup: %w", err)
	}
	if meta == nil {
		return types.TenantContext{}, ErrInvalidServiceKey
	}

	tc := types.TenantContext{
		TenantID: strings.TrimSpace(req.Header.Get(HeaderTenantID)),
		UserID:   strings.TrimSpace(req.Header.Get(HeaderUserID)),
		Role:     normalizeRole(meta.Role),
	}
	if !tc.Valid() || !meta.Permits(tc.TenantID, r.now()) {
		return types.TenantContext{}, ErrNoTenant
	}
	return tc, nil
}

func (r *Resolver) devIdentity() (types.TenantContext, error) {
	tc := types.TenantContext{TenantID: r.cfg.DevTenantID, UserID: r.cfg.DevUserID, Role: types.RolePatient}
	if !tc.Valid() {
		return types.TenantContext{}, ErrNoTenant
	}
	return tc, nil
}

func normalizeRole(v any) string {
	if s, _ := v.(string); s == types.RoleAuditor {
		return types.RoleAuditor
	}
	return types.RolePatient
}
