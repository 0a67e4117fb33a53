package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolConfig sizes the user store's connection pool. Zero fields take the
// values in defaultPoolConfig.
type PoolConfig struct {
	ConnString      string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration

	// StartupRetry bounds how long NewPool keeps pinging a database that is
	// still starting.
	StartupRetry time.Duration
}

var defaultPoolConfig = PoolConfig{
	MaxConns:        20,
	MinConns:        5,
	MaxConnLifetime: time.Hour,
	MaxConnIdleTime: 30 * time.Minute,
	ConnectTimeout:  10 * time.Second,
	StartupRetry:    30 * time.Second,
}

// ApplyDefaults fills unset fields.
func (c *PoolConfig) ApplyDefaults() {
	c.MaxConns = orDefault(c.MaxConns, defaultPoolConfig.MaxConns)
	c.MinConns = orDefault(c.MinConns, defaultPoolConfig.MinConns)
	c.MaxConnLifetime = orDefault(c.MaxConnLifetime, defaultPoolConfig.MaxConnLifetime)
	c.MaxConnIdleTime = orDefault(c.MaxConnIdleTime, defaultPoolConfig.MaxConnIdleTime)
	c.ConnectTimeout = orDefault(c.ConnectTimeout, defaultPoolConfig.ConnectTimeout)
	c.StartupRetry = orDefault(c.StartupRetry, defaultPoolConfig.StartupRetry)
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v == 0 {
		return def
	}
	return v
}

// NewPool opens a pool and pings with exponential backoff until the database
// answers or StartupRetry elapses.
func NewPool(ctx context.Context, cfg *PoolConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, errors.New("pool config is required")
	}
	if cfg.ConnString == "" {
		return nil, errors.New("invalid pool config: connection string is required")
	}
	cfg.ApplyDefaults()

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if err := pool.Ping(ctx); err != nil {
			log.Debug().Err(err).Msg("database not ready, retrying ping")
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(cfg.StartupRetry),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
