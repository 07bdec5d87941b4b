// Package store is the scoped data gateway. Every statement runs inside a
// transaction whose tenant and user are bound with transaction-local settings
// that row-level security policies read back.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellbridge/careguard/internal/types"
)

// ErrNoScope is returned by writes attempted without a valid TenantContext.
var ErrNoScope = errors.New("store: tenant scope required")

// ErrSessionNotFound is returned when a message targets a session the caller
// cannot see. Missing and foreign sessions produce the same error.
var ErrSessionNotFound = errors.New("store: session not found")

const bindScope = `SELECT set_config('app.tenant_id', $1, true),
       set_config('app.user_id', $2, true),
       set_config('app.role', $3, true)`

// Gateway wraps the pool. It holds no per-request state.
type Gateway struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Gateway {
	return &Gateway{pool: pool}
}

// Scoped runs fn in a read-write transaction bound to tc.
func (g *Gateway) Scoped(ctx context.Context, tc types.TenantContext, fn func(pgx.Tx) error) error {
	return g.scoped(ctx, tc, pgx.TxOptions{}, fn)
}

func (g *Gateway) scopedRead(ctx context.Context, tc types.TenantContext, fn func(pgx.Tx) error) error {
	return g.scoped(ctx, tc, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (g *Gateway) scoped(ctx context.Context, tc types.TenantContext, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	if !tc.Valid() {
		return ErrNoScope
	}
	role := tc.Role
	if role == "" {
		role = types.RolePatient
	}

	tx, err := g.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin scoped tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, bindScope, tc.TenantID, tc.UserID, role); err != nil {
		return fmt.Errorf("bind tenant scope: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit scoped tx: %w", err)
	}
	return nil
}

// Ping checks database connectivity for the health endpoint.
func (g *Gateway) Ping(ctx context.Context) error {
	if g.pool == nil {
		return errors.New("store: no pool")
	}
	return g.pool.Ping(ctx)
}
