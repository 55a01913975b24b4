package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig describes the records database connection.
type PoolConfig struct {
	URL      string
	AppName  string
	MaxConns int32
	MinConns int32
	// MaxConnIdleTime defaults to five minutes.
	MaxConnIdleTime time.Duration
}

func (c PoolConfig) parse() (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if c.MinConns > c.MaxConns && c.MaxConns > 0 {
		return nil, fmt.Errorf("min conns %d exceeds max conns %d", c.MinConns, c.MaxConns)
	}
	if c.MaxConns > 0 {
		cfg.MaxConns = c.MaxConns
	}
	cfg.MinConns = c.MinConns
	cfg.MaxConnIdleTime = c.MaxConnIdleTime
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	// Shows up in pg_stat_activity; an application_name in the URL wins.
	if c.AppName != "" && cfg.ConnConfig.RuntimeParams["application_name"] == "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = c.AppName
	}
	return cfg, nil
}

// NewPool opens a pool and pings it once.
func NewPool(ctx context.Context, c PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := c.parse()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
