package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wellbridge/careguard/internal/auth"
)

func main() {
	tenant := flag.String("tenant", "", "tenant ID the key is pinned to (omit for a key that may act for any tenant)")
	name := flag.String("name", "", "human-friendly key name (required)")
	role := flag.String("role", "patient", "role granted to callers: patient or auditor")
	env := flag.String("env", "prod", "environment prefix")
	expires := flag.String("expires", "365d", "expiry duration (e.g., 365d, 720h)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	flag.Parse()

	if *name == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -name is required")
		os.Exit(1)
	}
	if *role != "patient" && *role != "auditor" {
		log.Fatalf("invalid role %q (use patient or auditor)", *role)
	}

	rawKey, err := auth.GenerateKey(*env)
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	dur, err := auth.ParseDuration(*expires)
	if err != nil {
		log.Fatalf("invalid expires: %v", err)
	}
	expiresAt := time.Now().Add(dur)

	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			envOrDefault("DB_USER", "careguard"),
			envOrDefault("DB_PASSWORD", "careguard-dev"),
			envOrDefault("DB_HOST", "localhost"),
			envOrDefault("DB_PORT", "5432"),
			envOrDefault("DB_NAME", "careguard"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	var keyID string
	err = conn.QueryRow(ctx, `
		INSERT INTO service_keys (key_hash, key_prefix, name, tenant_id, role, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, auth.HashKey(rawKey), auth.KeyPrefix(rawKey), *name, nilIfEmpty(*tenant), *role, expiresAt).Scan(&keyID)
	if err != nil {
		log.Fatalf("failed to insert key: %v", err)
	}

	fmt.Println("=== CareGuard service key ===")
	fmt.Println()
	fmt.Printf("  Key ID:   %s\n", keyID)
	fmt.Printf("  Prefix:   %s\n", auth.KeyPrefix(rawKey))
	if *tenant != "" {
		fmt.Printf("  Tenant:   %s\n", *tenant)
	} else {
		fmt.Println("  Tenant:   any (callers must send X-Tenant-ID)")
	}
	fmt.Printf("  Role:     %s\n", *role)
	fmt.Printf("  Expires:  %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  Key (shown once):")
	fmt.Printf("  %s\n", rawKey)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
