// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PoolConfig holds pool sizing; zero values fall back to defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	ConnectAttempts int
	RetryDelay      time.Duration
}

// NewPool creates and validates a pgxpool connection pool.
// It retries a few times to accommodate containers starting up.
func NewPool(ctx context.Context, dsn string, pc PoolConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pc.MaxConns <= 0 {
		pc.MaxConns = 20
	}
	if pc.MinConns <= 0 {
		pc.MinConns = 2
	}
	if pc.ConnectAttempts <= 0 {
		pc.ConnectAttempts = 5
	}
	if pc.RetryDelay <= 0 {
		pc.RetryDelay = 2 * time.Second
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = pc.MaxConns
	poolCfg.MinConns = pc.MinConns
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= pc.ConnectAttempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		logger.Warn("db connect attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", pc.ConnectAttempts),
			zap.Duration("retry_in", pc.RetryDelay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pc.RetryDelay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	logger.Info("PostgreSQL connection pool established", zap.Int32("max_conns", pc.MaxConns))
	return pool, nil
}
