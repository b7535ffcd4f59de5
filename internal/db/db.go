// Package db opens the Postgres pool used by the vector store and the lease
// lock and applies the schema migrations.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// DefaultMigrationsPath is used when MIGRATIONS_PATH is unset.
const DefaultMigrationsPath = "migrations"

// Connect opens a pool whose connections know the pgvector types. The
// vector extension must exist, so Migrate runs first on a fresh database.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies every pending up migration found in dir.
func Migrate(url, dir string) error {
	m, err := migrate.New(SourceURL(dir), url)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("[DB] Schema up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("[DB] Migrations applied", "version", version, "dirty", dirty)
	return nil
}

// SourceURL turns a directory into a file:// migration source.
func SourceURL(dir string) string {
	if dir == "" {
		dir = DefaultMigrationsPath
	}
	if strings.HasPrefix(dir, "file://") {
		return dir
	}
	return "file://" + dir
}
