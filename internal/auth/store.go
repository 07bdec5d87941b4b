package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	keyCacheTTL       = 5 * time.Minute
	keyCachePrefix    = "careguard:svckey:"
	tenantCachePrefix = "careguard:tenant:"
)

// KeyStore looks up service key metadata by hash. A nil result with a nil
// error means the key is unknown, revoked or expired.
type KeyStore interface {
	Lookup(ctx context.Context, keyHash string) (*ServiceKey, error)
}

// CachedKeyStore implements KeyStore with PostgreSQL + Redis cache.
type CachedKeyStore struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewCachedKeyStore(db *pgxpool.Pool, rdb *redis.Client) *CachedKeyStore {
	return &CachedKeyStore{db: db, redis: rdb}
}

func (s *CachedKeyStore) Lookup(ctx context.Context, keyHash string) (*ServiceKey, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, keyCachePrefix+keyHash).Bytes()
		if err == nil {
			var key ServiceKey
			if err := json.Unmarshal(cached, &key); err == nil {
				return &key, nil
			}
		}
	}

	key, err := s.lookupDB(ctx, keyHash)
	if err != nil || key == nil {
		return nil, err
	}

	if s.redis != nil {
		ttl := min(keyCacheTTL, time.Until(key.ExpiresAt))
		if data, err := json.Marshal(key); err == nil && ttl > 0 {
			s.redis.Set(ctx, keyCachePrefix+keyHash, data, ttl)
		}
	}
	return key, nil
}

func (s *CachedKeyStore) lookupDB(ctx context.Context, keyHash string) (*ServiceKey, error) {
	var key ServiceKey
	var tenantID *string

	err := s.db.QueryRow(ctx, `
		SELECT id, name, tenant_id, role, expires_at
		FROM service_keys
		WHERE key_hash = $1
		  AND status = 'active'
		  AND expires_at > NOW()
	`, keyHash).Scan(&key.ID, &key.Name, &tenantID, &key.Role, &key.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query service_keys: %w", err)
	}
	if tenantID != nil {
		key.TenantID = *tenantID
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.db.Exec(bgCtx, `UPDATE service_keys SET last_used_at = NOW() WHERE id = $1`, key.ID) //nolint:errcheck
	}()

	return &key, nil
}

// TenantDirectory makes sure a tenant row exists before its first scoped write.
type TenantDirectory struct {
	db    *pgxpool.Pool
	redis *redis.Client
	ttl   time.Duration
	local sync.Map
}

func NewTenantDirectory(db *pgxpool.Pool, rdb *redis.Client, ttl time.Duration) *TenantDirectory {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TenantDirectory{db: db, redis: rdb, ttl: ttl}
}

// Ensure upserts the tenant row unless it was seen recently.
func (d *TenantDirectory) Ensure(ctx context.Context, tenantID string) error {
	if _, ok := d.local.Load(tenantID); ok {
		return nil
	}
	if d.redis != nil {
		if n, err := d.redis.Exists(ctx, tenantCachePrefix+tenantID).Result(); err == nil && n > 0 {
			d.local.Store(tenantID, struct{}{})
			return nil
		}
	}

	_, err := d.db.Exec(ctx, `INSERT INTO tenants (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, tenantID)
	if err != nil {
		return fmt.Errorf("ensure tenant: %w", err)
	}
	d.local.Store(tenantID, struct{}{})

	if d.redis != nil {
		if err := d.redis.Set(ctx, tenantCachePrefix+tenantID, 1, d.ttl).Err(); err != nil {
			slog.Debug("tenant cache write failed", "tenant_id", tenantID, "error", err)
		}
	}
	return nil
}
