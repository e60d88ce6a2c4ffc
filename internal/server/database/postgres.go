package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors shared by all repositories.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

// migrations contains all database migrations in order.
var migrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_users",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id            UUID         PRIMARY KEY,
				username      VARCHAR(64)  NOT NULL,
				email         VARCHAR(255) NOT NULL,
				streamer_mode BOOLEAN      NOT NULL DEFAULT FALSE,
				created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		Version: "000002_create_uploads",
		SQL: `
			CREATE TABLE IF NOT EXISTS uploads (
				id           UUID         PRIMARY KEY,
				owner_id     UUID         NOT NULL,
				stored_name  VARCHAR(64)  NOT NULL,
				extension    VARCHAR(32)  NOT NULL,
				display_name VARCHAR(255),
				delete_key   VARCHAR(64)  NOT NULL,
				tags         TEXT[]       NOT NULL DEFAULT '{}',
				size         VARCHAR(32)  NOT NULL,
				type         VARCHAR(8)   NOT NULL,
				uploaded_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				updated_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_uploads_stored_name ON uploads(stored_name);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_uploads_delete_key ON uploads(delete_key);
			CREATE INDEX IF NOT EXISTS idx_uploads_owner ON uploads(owner_id);
		`,
	},
	{
		Version: "000003_create_links",
		SQL: `
			CREATE TABLE IF NOT EXISTS links (
				id          UUID         PRIMARY KEY,
				owner_id    UUID         NOT NULL,
				code        VARCHAR(64)  NOT NULL,
				url         TEXT         NOT NULL,
				clicks      INTEGER      NOT NULL DEFAULT 0,
				click_limit INTEGER,
				expires_at  TIMESTAMPTZ,
				tags        TEXT[]       NOT NULL DEFAULT '{}',
				delete_key  VARCHAR(64)  NOT NULL,
				created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				updated_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_links_code ON links(code);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_links_delete_key ON links(delete_key);
			CREATE INDEX IF NOT EXISTS idx_links_owner ON links(owner_id);
			CREATE INDEX IF NOT EXISTS idx_links_expires_at ON links(expires_at);
		`,
	},
	{
		Version: "000004_create_tokens",
		SQL: `
			CREATE TABLE IF NOT EXISTS tokens (
				id          UUID         PRIMARY KEY,
				owner_id    UUID         NOT NULL,
				label       VARCHAR(64)  NOT NULL,
				secret_hash VARCHAR(255) NOT NULL,
				created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_tokens_owner ON tokens(owner_id);
		`,
	},
}

// DB wraps a pgxpool connection pool and provides health checks and migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database")
	return &DB{Pool: pool}, nil
}

// RunMigrations applies all pending database migrations in order.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}

		slog.Info("applied migration", "version", m.Version)
	}

	return nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// mapError translates pgx errors into repository sentinels. Unique-constraint
// violations become ErrDuplicate so callers can regenerate identifiers.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// normalizeTags maps a nil tag slice to an empty one. pgx encodes nil as SQL
// NULL, which the NOT NULL tags columns reject.
func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
