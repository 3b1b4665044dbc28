// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package sqlite implements account.Repository on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"path/filepath"

	"github.com/pressly/goose/v3"
	"github.com/samber/oops"
	// Register the pure-Go "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/pokeu/pokeu/internal/xdg"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBTX is the subset of database/sql used by the repository.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (creating if needed) the SQLite database at path.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := xdg.EnsureDir(dir); err != nil {
			return nil, oops.With("path", path).Wrap(err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("path", path).Wrap(err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("DB_OPEN_FAILED").With("path", path).Wrap(err)
	}
	return db, nil
}

// gooseUp and gooseVersion are seams for testing.
var (
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.UpContext(ctx, db, dir)
	}
	gooseVersion = func(ctx context.Context, db *sql.DB) (int64, error) {
		return goose.GetDBVersionContext(ctx, db)
	}
)

func prepareGoose() error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	return goose.SetDialect("sqlite3")
}

// Migrate applies pending schema migrations. Running it again is a no-op.
func Migrate(ctx context.Context, db *sql.DB) error {
	if err := prepareGoose(); err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	if err := gooseUp(ctx, db, "migrations"); err != nil {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// Down rolls back every migration, dropping all accounts.
func Down(ctx context.Context, db *sql.DB) error {
	if err := prepareGoose(); err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	if err := goose.DownToContext(ctx, db, "migrations", 0); err != nil {
		return oops.Code("MIGRATION_DOWN_FAILED").Wrap(err)
	}
	return nil
}

// Pending returns how many embedded migrations are newer than the applied
// schema version.
func Pending(ctx context.Context, db *sql.DB) (int, error) {
	current, err := Version(ctx, db)
	if err != nil {
		return 0, err
	}
	migrations, err := goose.CollectMigrations("migrations", current, goose.MaxVersion)
	if err != nil {
		return 0, oops.Code("MIGRATION_VERSION_FAILED").With("version", current).Wrap(err)
	}
	return len(migrations), nil
}

// Version returns the applied schema version (0 when nothing is applied).
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	if err := prepareGoose(); err != nil {
		return 0, oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	v, err := gooseVersion(ctx, db)
	if err != nil {
		return 0, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return v, nil
}
