// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package postgres

import (
	"errors"
	"regexp"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokeu/pokeu/pkg/errutil"
)

type mockMigrate struct {
	upErr          error
	downErr        error
	versionVal     uint
	versionErr     error
	dirty          bool
	forceErr       error
	closeSourceErr error
	closeDBErr     error
}

func (m *mockMigrate) Up() error                    { return m.upErr }
func (m *mockMigrate) Down() error                  { return m.downErr }
func (m *mockMigrate) Version() (uint, bool, error) { return m.versionVal, m.dirty, m.versionErr }
func (m *mockMigrate) Force(_ int) error            { return m.forceErr }
func (m *mockMigrate) Close() (error, error)        { return m.closeSourceErr, m.closeDBErr }

func TestNewMigrator_InvalidURL(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/pokeu")
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgres://u@h/db"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("pgx5://u@h/db"))
}

func TestMigrator_Up(t *testing.T) {
	require.NoError(t, (&Migrator{m: &mockMigrate{}}).Up())
	require.NoError(t, (&Migrator{m: &mockMigrate{upErr: migrate.ErrNoChange}}).Up(), "no change is success")

	err := (&Migrator{m: &mockMigrate{upErr: errors.New("database locked")}}).Up()
	errutil.AssertErrorCode(t, err, "MIGRATION_UP_FAILED")
}

func TestMigrator_Down(t *testing.T) {
	require.NoError(t, (&Migrator{m: &mockMigrate{downErr: migrate.ErrNoChange}}).Down())

	err := (&Migrator{m: &mockMigrate{downErr: errors.New("boom")}}).Down()
	errutil.AssertErrorCode(t, err, "MIGRATION_DOWN_FAILED")
}

func TestMigrator_Version(t *testing.T) {
	v, dirty, err := (&Migrator{m: &mockMigrate{versionVal: 1, dirty: true}}).Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.True(t, dirty)

	v, dirty, err = (&Migrator{m: &mockMigrate{versionErr: migrate.ErrNilVersion}}).Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	_, _, err = (&Migrator{m: &mockMigrate{versionErr: errors.New("connection lost")}}).Version()
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
}

func TestMigrator_Force(t *testing.T) {
	require.NoError(t, (&Migrator{m: &mockMigrate{}}).Force(1))

	err := (&Migrator{m: &mockMigrate{}}).Force(-1)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")

	err = (&Migrator{m: &mockMigrate{forceErr: errors.New("nope")}}).Force(1)
	errutil.AssertErrorCode(t, err, "MIGRATION_FORCE_FAILED")
}

func TestMigrator_Close(t *testing.T) {
	tests := []struct {
		name      string
		mock      *mockMigrate
		component string
	}{
		{"clean", &mockMigrate{}, ""},
		{"source", &mockMigrate{closeSourceErr: errors.New("src")}, "source"},
		{"database", &mockMigrate{closeDBErr: errors.New("db")}, "database"},
		{"both", &mockMigrate{closeSourceErr: errors.New("src"), closeDBErr: errors.New("db")}, "both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Migrator{m: tt.mock}).Close()
			if tt.component == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
			errutil.AssertErrorContext(t, err, "component", tt.component)
		})
	}
}

func TestMigrator_Pending(t *testing.T) {
	pending, err := (&Migrator{m: &mockMigrate{versionErr: migrate.ErrNilVersion}}).Pending()
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, pending)

	pending, err = (&Migrator{m: &mockMigrate{versionVal: 1}}).Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigrationsFS_Naming(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for _, entry := range entries {
		assert.True(t, pattern.MatchString(entry.Name()), "unexpected migration file %s", entry.Name())
	}
}
