// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package store selects and opens the account storage backend named by a
// database URL.
package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/account/postgres"
	"github.com/pokeu/pokeu/internal/account/sqlite"
	"github.com/pokeu/pokeu/internal/xdg"
)

// Backend names a storage implementation.
type Backend string

// Supported backends.
const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Target is a parsed database URL.
type Target struct {
	Backend Backend
	// Location is a file path for SQLite and the connection URL for PostgreSQL.
	Location string
}

// ParseURL resolves a database URL. An empty URL selects the SQLite file
// under the XDG data directory.
func ParseURL(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		path, err := xdg.DatabaseFile()
		if err != nil {
			return Target{}, err
		}
		return Target{Backend: BackendSQLite, Location: path}, nil
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return Target{Backend: BackendPostgres, Location: raw}, nil
	case strings.HasPrefix(raw, "sqlite://"):
		return sqliteTarget(strings.TrimPrefix(raw, "sqlite://"))
	case strings.HasPrefix(raw, "file:"):
		return sqliteTarget(strings.TrimPrefix(raw, "file:"))
	case !strings.Contains(raw, "://"):
		return sqliteTarget(raw)
	}
	return Target{}, oops.Code("STORE_UNSUPPORTED_URL").
		With("scheme", raw[:strings.Index(raw, "://")]).
		Errorf("unsupported database URL scheme")
}

func sqliteTarget(path string) (Target, error) {
	if path == "" {
		return Target{}, oops.Code("STORE_UNSUPPORTED_URL").Errorf("sqlite URL has no path")
	}
	return Target{Backend: BackendSQLite, Location: path}, nil
}

// Store is an open backend.
type Store struct {
	target Target
	repo   account.Repository

	db   *sql.DB
	pool *pgxpool.Pool
}

// connectPostgres and newMigrator are seams for testing.
var (
	connectPostgres = func(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, dsn, postgres.DefaultConnectOptions())
	}
	newMigrator = func(dsn string) (migrator, error) {
		return postgres.NewMigrator(dsn)
	}
)

type migrator interface {
	Up() error
	Down() error
	Force(version int) error
	Version() (uint, bool, error)
	Pending() ([]uint, error)
	Close() error
}

// Open connects to the backend described by rawURL.
func Open(ctx context.Context, rawURL string) (*Store, error) {
	target, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	switch target.Backend {
	case BackendPostgres:
		pool, err := connectPostgres(ctx, target.Location)
		if err != nil {
			return nil, oops.Code("STORE_OPEN_FAILED").With("backend", string(target.Backend)).Wrap(err)
		}
		return &Store{target: target, repo: postgres.NewRepository(pool), pool: pool}, nil
	default:
		db, err := sqlite.Open(ctx, target.Location)
		if err != nil {
			return nil, oops.Code("STORE_OPEN_FAILED").With("backend", string(target.Backend)).Wrap(err)
		}
		return &Store{target: target, repo: sqlite.NewRepository(db), db: db}, nil
	}
}

// Target reports which backend is open.
func (s *Store) Target() Target {
	return s.target
}

// Accounts returns the account repository.
func (s *Store) Accounts() account.Repository {
	return s.repo
}

// Migrate applies pending schema migrations. It is safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if s.db != nil {
		return sqlite.Migrate(ctx, s.db)
	}
	m, err := newMigrator(s.target.Location)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }() //nolint:errcheck // migration result takes precedence
	return m.Up()
}

// Down rolls the schema back to empty. All accounts are lost.
func (s *Store) Down(ctx context.Context) error {
	if s.db != nil {
		return sqlite.Down(ctx, s.db)
	}
	m, err := newMigrator(s.target.Location)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }() //nolint:errcheck // migration result takes precedence
	return m.Down()
}

// Force records version as applied and clears the dirty flag. Only postgres
// migrations can be left dirty, so sqlite rejects it.
func (s *Store) Force(_ context.Context, version int) error {
	if s.db != nil {
		return oops.Code("STORE_UNSUPPORTED").
			With("backend", string(s.target.Backend)).
			Errorf("force is only available for postgres")
	}
	m, err := newMigrator(s.target.Location)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }() //nolint:errcheck // migration result takes precedence
	return m.Force(version)
}

// Status describes the schema state.
type Status struct {
	Backend Backend `json:"backend" yaml:"backend"`
	Version int64   `json:"version" yaml:"version"`
	Dirty   bool    `json:"dirty" yaml:"dirty"`
	Pending int     `json:"pending" yaml:"pending"`
}

// Status reports the applied schema version and how many migrations are
// still to run.
func (s *Store) Status(ctx context.Context) (Status, error) {
	st := Status{Backend: s.target.Backend}
	if s.db != nil {
		v, err := sqlite.Version(ctx, s.db)
		if err != nil {
			return st, err
		}
		pending, err := sqlite.Pending(ctx, s.db)
		if err != nil {
			return st, err
		}
		st.Version, st.Pending = v, pending
		return st, nil
	}

	m, err := newMigrator(s.target.Location)
	if err != nil {
		return st, err
	}
	defer func() { _ = m.Close() }() //nolint:errcheck // status result takes precedence
	v, dirty, err := m.Version()
	if err != nil {
		return st, err
	}
	pending, err := m.Pending()
	if err != nil {
		return st, err
	}
	st.Version, st.Dirty, st.Pending = int64(v), dirty, len(pending)
	return st, nil
}

// Ping checks the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	var err error
	if s.db != nil {
		err = s.db.PingContext(ctx)
	} else {
		err = s.pool.Ping(ctx)
	}
	if err != nil {
		return oops.Code("STORE_PING_FAILED").With("backend", string(s.target.Backend)).Wrap(err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return oops.Code("STORE_CLOSE_FAILED").Wrap(err)
		}
	}
	return nil
}
