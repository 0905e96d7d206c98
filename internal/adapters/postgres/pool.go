package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
)

// Open creates a connection pool from cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres DSN is not configured")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeoutSeconds > 0 {
		poolCfg.ConnConfig.ConnectTimeout = time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout(cfg))
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func connectTimeout(cfg config.PostgresConfig) time.Duration {
	if cfg.ConnectTimeoutSeconds > 0 {
		return time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	}
	return 5 * time.Second
}

func queryTimeout(cfg config.PostgresConfig) time.Duration {
	if cfg.QueryTimeoutSeconds > 0 {
		return time.Duration(cfg.QueryTimeoutSeconds) * time.Second
	}
	return 5 * time.Second
}
