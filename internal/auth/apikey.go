package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"
	keyScheme    = "cg"
	secretLen    = 32
)

// GenerateKey creates a new service key: cg-{env}-{32 random alphanumeric chars}.
// env must be a short lowercase label without dashes.
func GenerateKey(env string) (string, error) {
	if !validEnv(env) {
		return "", fmt.Errorf("invalid key environment %q", env)
	}
	random, err := randomString(secretLen)
	if err != nil {
		return "", fmt.Errorf("generate random: %w", err)
	}
	return keyScheme + "-" + env + "-" + random, nil
}

// WellFormedKey reports whether key has the shape GenerateKey produces.
// The resolver uses it to reject garbage before touching the key store.
func WellFormedKey(key string) bool {
	parts := strings.Split(key, "-")
	if len(parts) != 3 || parts[0] != keyScheme || !validEnv(parts[1]) || len(parts[2]) != secretLen {
		return false
	}
	return strings.Trim(parts[2], alphanumeric) == ""
}

func validEnv(env string) bool {
	if env == "" || len(env) > 16 {
		return false
	}
	return strings.Trim(env, alphanumeric) == ""
}

// HashKey returns the SHA-256 hex digest of a service key.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// KeyPrefix extracts a display-safe prefix from a key: cg-{env}-{first 8 chars}
func KeyPrefix(key string) string {
	if len(key) < 12 {
		return key
	}
	dashes := 0
	for i, c := range key {
		if c == '-' {
			dashes++
			if dashes == 2 {
				end := min(i+9, len(key))
				return key[:end]
			}
		}
	}
	return key[:12]
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}

// ServiceKey is the cached metadata of a key allowed to use the privileged
// override path. An empty TenantID lets the key act for any tenant.
type ServiceKey struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Permits reports whether the key may act for tenantID at now.
func (k *ServiceKey) Permits(tenantID string, now time.Time) bool {
	if !k.ExpiresAt.IsZero() && !now.Before(k.ExpiresAt) {
		return false
	}
	return k.TenantID == "" || k.TenantID == tenantID
}

// ParseDuration parses a duration string like "365d", "30d", "24h".
func ParseDuration(s string) (time.Duration, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty duration")
	}
	last := s[len(s)-1]
	if last == 'd' {
		var days int
		_, err := fmt.Sscanf(s, "%dd", &days)
		if err != nil {
			return 0, fmt.Errorf("parse days: %w", err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
