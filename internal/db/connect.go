package db

import (
	"context"
	"time"

	"number_merge_game/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens the pool and exits the process when the database is
// unreachable.
func Connect(dsn string) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := Open(ctx, dsn)
	if err != nil {
		logger.Fatal("failed to connect to database", "err", err)
	}

	logger.Info("database connected")
	return pool
}

// Open is Connect without the exit, for tools and tests.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
