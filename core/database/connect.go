package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/bookingbot/core/logger"
)

// Connect opens the database connection, configures the pool, and verifies connectivity.
// It retries until the server accepts connections or waitFor elapses.
func Connect(ctx context.Context, cfg Config, waitFor time.Duration) (*sqlx.DB, error) {
	cfg.Normalize()
	start := time.Now()
	deadline := start.Add(waitFor)

	var (
		db      *sqlx.DB
		err     error
		attempt int
	)
	for {
		attempt++
		db, err = connectOnce(ctx, cfg)
		if err == nil {
			break
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			logger.DB.Error("db connect failed",
				slog.String("event", "db.connect"),
				slog.String("status", "fail"),
				slog.String("host", cfg.Host),
				slog.String("port", cfg.Port),
				slog.String("db", cfg.Name),
				slog.Int("attempts", attempt),
				slog.Duration("duration", logger.Took(start)),
				logger.Err(err),
			)
			return nil, fmt.Errorf("db connect: %w", err)
		}
		logger.DB.Warn("db not ready",
			slog.String("event", "db.connect"),
			slog.String("status", "retry"),
			slog.Int("attempts", attempt),
			logger.Err(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	logger.DB.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("status", "ok"),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", logger.Took(start)),
	)
	return db, nil
}

func connectOnce(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	db, err := sqlx.ConnectContext(cctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(cctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
