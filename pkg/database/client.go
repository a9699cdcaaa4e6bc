package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netassist/core/pkg/models"
)

// Client wraps a pgx connection pool shared by every repository in
// pkg/devicecatalog and pkg/convstore.
type Client struct {
	Pool *pgxpool.Pool
}

// NewClient opens a connection pool against cfg, applies pool tuning, pings
// the database, and runs pending migrations before returning.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		pool.Close()
		return nil, models.NewExecutionError(models.ClassSchemaMismatch, "migration failed", err)
	}

	return &Client{Pool: pool}, nil
}

// NewClientFromPool wraps an existing pool, useful for tests that construct
// a pool via testcontainers.
func NewClientFromPool(pool *pgxpool.Pool) *Client {
	return &Client{Pool: pool}
}

// Close releases the underlying connection pool.
func (c *Client) Close() {
	c.Pool.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic, honoring the begin/commit/rollback
// contract. Nested calls are a design error, not a runtime condition to
// recover from — the caller must not call WithTx from within fn.
func (c *Client) WithTx(ctx context.Context, fn func(tx pgxTx) error) (err error) {
	tx, err := c.Pool.Begin(ctx)
	if err != nil {
		return models.NewExecutionError(models.ClassConcurrencyConflict, "begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()
	return fn(tx)
}
