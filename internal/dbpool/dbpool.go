// Package dbpool constructs the shared Postgres connection pool handed to
// every step that needs to persist state. pgxpool.Pool is already a cheap,
// reference-counted handle safe to pass by pointer to every step that needs
// it, so this package is a thin, typed constructor rather than a wrapper
// type.
package dbpool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0xkanth/polymarket-indexer/internal/config"
)

// New builds a pgxpool.Pool from cfg, sizing the pool per DBPoolSize.
func New(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres connection string: %w", err)
	}
	if cfg.DBPoolSize > 0 {
		poolCfg.MaxConns = int32(cfg.DBPoolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
