package bootstrap

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/bookingbot/core/config"
	coredatabase "github.com/m3rciful/bookingbot/core/database"
)

func noopLogger(*coreconfig.Config) error { return nil }

func TestRunRequiresConfig(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	require.Error(t, err)
}

func TestRunSkipsDatabaseWhenDisabled(t *testing.T) {
	connectCalled := false
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noopLogger,
		Connect: func(context.Context, coredatabase.Config, time.Duration) (*sqlx.DB, error) {
			connectCalled = true
			return nil, nil
		},
	})
	require.NoError(t, err)
	assert.Nil(t, res.DB)
	assert.False(t, connectCalled)
	assert.NoError(t, res.Close())
}

func TestRunPropagatesLoggerFailure(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return errors.New("no sink") },
	})
	require.ErrorContains(t, err, "logger init failed")
}

func TestRunConnectsAndMigrates(t *testing.T) {
	var migratedDir string
	res, err := Run(context.Background(), Options{
		Config:        &coreconfig.Config{},
		Database:      coredatabase.Config{Host: "db"},
		Migrations:    fstest.MapFS{"sql/0001_init.up.sql": {Data: []byte("select 1")}},
		MigrationsDir: "sql",
		LoggerInit:    noopLogger,
		Connect: func(_ context.Context, cfg coredatabase.Config, _ time.Duration) (*sqlx.DB, error) {
			assert.Equal(t, "db", cfg.Host)
			return &sqlx.DB{}, nil
		},
		Migrate: func(_ coredatabase.Config, _ fs.FS, dir string) error {
			migratedDir = dir
			return nil
		},
	})
	require.NoError(t, err)
	assert.NotNil(t, res.DB)
	assert.Equal(t, "sql", migratedDir)
}
