// Package migrations holds the SQL schema and runs it through bun's migrator.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var sqlFiles embed.FS

// Migrations is the registered migration set.
var Migrations = migrate.NewMigrations()

func init() {
	if err := Migrations.Discover(sqlFiles); err != nil {
		panic(err)
	}
}

// NewMigrator wraps an open Postgres handle with bun's migrator.
func NewMigrator(sqldb *sql.DB) *migrate.Migrator {
	db := bun.NewDB(sqldb, pgdialect.New())
	return migrate.NewMigrator(db, Migrations)
}

// Up creates the bookkeeping tables if needed and applies pending migrations.
// It returns the applied group, which is zero when nothing was pending.
func Up(ctx context.Context, sqldb *sql.DB) (*migrate.MigrationGroup, error) {
	migrator := NewMigrator(sqldb)
	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("init migration tables: %w", err)
	}
	if err := migrator.Lock(ctx); err != nil {
		return nil, fmt.Errorf("lock migrations: %w", err)
	}
	defer migrator.Unlock(ctx) //nolint:errcheck

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return group, nil
}
