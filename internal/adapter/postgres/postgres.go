// Package postgres implements the Stats and Incident repositories on PostgreSQL.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Connect opens a pool and verifies it with a ping. tracer may be nil.
func Connect(ctx context.Context, databaseURL string, tracer pgx.QueryTracer) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if tracer != nil {
		poolCfg.ConnConfig.Tracer = tracer
	}

	slog.Info("Database SSL mode", "sslmode", extractSSLMode(databaseURL))

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected", "min_conns", poolCfg.MinConns, "max_conns", poolCfg.MaxConns)
	return pool, nil
}

func extractSSLMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "unknown"
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "" {
		return "prefer (default)"
	}
	return mode
}

const (
	// migrationLockID is "essence" in ASCII hex.
	migrationLockID             = 0x657373656e6365
	migrationLockReleaseTimeout = 5 * time.Second
)

// RunMigrationsWithLock applies pending migrations while holding an advisory
// lock, so concurrent instances migrate one at a time.
func RunMigrationsWithLock(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Release()

	unlock, err := migrationLock(ctx, conn.Conn())
	if err != nil {
		return err
	}
	defer unlock()

	slog.Info("Running database migrations")
	return runMigrations(ctx, conn.Conn())
}

// MigrationStatus reports the applied and latest available schema versions.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool) (current, latest int32, err error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	migrator, err := newMigrator(ctx, conn.Conn())
	if err != nil {
		return 0, 0, err
	}
	current, err = migrator.GetCurrentVersion(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return current, int32(len(migrator.Migrations)), nil
}

func newMigrator(ctx context.Context, conn *pgx.Conn) (*migrate.Migrator, error) {
	migrationFS, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	migrator, err := migrate.NewMigrator(ctx, conn, "public.schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrator.LoadMigrations(migrationFS); err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return migrator, nil
}

func runMigrations(ctx context.Context, conn *pgx.Conn) error {
	migrator, err := newMigrator(ctx, conn)
	if err != nil {
		return err
	}

	if v, err := migrator.GetCurrentVersion(ctx); err != nil {
		slog.Debug("Could not read schema version, assuming fresh database", "error", err)
	} else {
		slog.Info("Current schema version", "version", v, "latest", len(migrator.Migrations))
	}

	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func migrationLock(ctx context.Context, conn *pgx.Conn) (unlock func(), err error) {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), migrationLockReleaseTimeout)
		defer cancel()

		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			slog.Error("Failed to release migration lock", "error", err)
		}
	}, nil
}
