// Package db opens the Postgres connection pool and brings the schema up
// to date from the embedded migrations before anything queries it.
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	// Postgres driver, registered for database/sql.
	_ "github.com/lib/pq"

	"github.com/sevigo/codesentry/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const connectTimeout = 5 * time.Second

// Open connects to cfg.URL (DATABASE_URL), applies the pool limits, and
// runs pending migrations. The returned cleanup closes the pool; callers
// hold it until shutdown.
func Open(ctx context.Context, cfg *config.DBConfig, logger *slog.Logger) (*sqlx.DB, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	pool, err := sqlx.ConnectContext(connectCtx, "postgres", cfg.URL)
	if err != nil {
		return nil, func() {}, fmt.Errorf("db: connect: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := migrateUp(pool, logger); err != nil {
		_ = pool.Close()
		return nil, func() {}, err
	}

	cleanup := func() {
		if err := pool.Close(); err != nil {
			logger.Error("failed to close database pool", "error", err)
		}
	}
	return pool, cleanup, nil
}

// migrateUp applies every pending migration from the embedded filesystem.
// A dirty schema is not auto-repaired: a half-applied migration means a
// previous deploy died mid-step, and forcing past it silently would leave
// the repo/symbol tables in a shape the queries no longer agree with.
func migrateUp(pool *sqlx.DB, logger *slog.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("db: load embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(pool.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db: prepare migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("db: create migrator: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("db: read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("db: schema is dirty at version %d; inspect the failed step and 'migrate force %d' before restarting", version, version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("schema is up to date", "version", version)
			return nil
		}
		return fmt.Errorf("db: apply migrations: %w", err)
	}

	applied, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("db: read schema version after migrate: %w", err)
	}
	logger.Info("schema migrations applied", "version", applied)
	return nil
}
