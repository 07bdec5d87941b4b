package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/wellbridge/careguard/internal/config"
)

// NewPool opens a pgx pool with the vector type registered on every connection.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	return newPool(ctx, cfg.DSN(), func(pc *pgxpool.Config) {
		if cfg.MaxOpenConns > 0 {
			pc.MaxConns = int32(cfg.MaxOpenConns)
		}
		if cfg.MinConns > 0 {
			pc.MinConns = int32(cfg.MinConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			pc.MaxConnLifetime = cfg.ConnMaxLifetime
		}
	})
}

// NewPoolFromURL is NewPool for a raw connection string.
func NewPoolFromURL(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return newPool(ctx, dsn, nil)
}

func newPool(ctx context.Context, dsn string, tune func(*pgxpool.Config)) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if tune != nil {
		tune(pc)
	}
	pc.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	return pool, nil
}
