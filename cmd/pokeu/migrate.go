// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pokeu/pokeu/internal/store"
)

// storeOpener opens the account store for admin commands.
var storeOpener = func(ctx context.Context, url string) (migrationStore, error) {
	return store.Open(ctx, url)
}

// migrationStore wraps the methods used by migrate from store.Store.
type migrationStore interface {
	Migrate(ctx context.Context) error
	Down(ctx context.Context) error
	Force(ctx context.Context, version int) error
	Status(ctx context.Context) (store.Status, error)
	Close() error
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Apply or inspect schema migrations for the configured backend.
Running migrate without a subcommand is the same as migrate up.`,
		RunE: runMigrateUp,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	})

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		RunE:  runMigrateStatus,
	}
	statusCmd.Flags().Bool("json", false, "print status as JSON")
	cmd.AddCommand(statusCmd)

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all accounts)",
		RunE:  runMigrateDown,
	}
	downCmd.Flags().Bool("yes", false, "confirm dropping the schema")
	cmd.AddCommand(downCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied and clear the dirty flag (postgres only)",
		Args:  cobra.ExactArgs(1),
		RunE:  runMigrateForce,
	})

	return cmd
}

func openMigrationStore(cmd *cobra.Command) (migrationStore, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	st, err := storeOpener(cmd.Context(), cfg.Database.URL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	return st, nil
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	st, err := openMigrationStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }() //nolint:errcheck // command result takes precedence

	cmd.Println("Running migrations...")
	if err := st.Migrate(cmd.Context()); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	status, err := st.Status(cmd.Context())
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read version").Wrap(err)
	}
	cmd.Printf("Migrations completed successfully (%s, version %d)\n", status.Backend, status.Version)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return oops.Wrap(err)
	}
	st, err := openMigrationStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }() //nolint:errcheck // command result takes precedence

	status, err := st.Status(cmd.Context())
	if err != nil {
		return oops.Code("MIGRATION_STATUS_FAILED").Wrap(err)
	}

	if asJSON {
		out, err := json.Marshal(status)
		if err != nil {
			return oops.Wrap(err)
		}
		cmd.Println(string(out))
		return nil
	}

	cmd.Printf("backend: %s\n", status.Backend)
	cmd.Printf("version: %d\n", status.Version)
	if status.Dirty {
		cmd.Println("state:   dirty")
	}
	if status.Pending > 0 {
		cmd.Printf("pending: %d\n", status.Pending)
	}
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return oops.Wrap(err)
	}
	if !yes {
		return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops all accounts; rerun with --yes")
	}
	st, err := openMigrationStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }() //nolint:errcheck // command result takes precedence

	cmd.Println("Rolling back migrations...")
	if err := st.Down(cmd.Context()); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
	}
	cmd.Println("Schema dropped")
	return nil
}

func runMigrateForce(cmd *cobra.Command, args []string) error {
	version, err := parseForceVersion(args[0])
	if err != nil {
		return err
	}
	st, err := openMigrationStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }() //nolint:errcheck // command result takes precedence

	if err := st.Force(cmd.Context(), version); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "force version").With("version", version).Wrap(err)
	}
	cmd.Printf("Forced schema version to %d\n", version)
	return nil
}

// parseForceVersion reads the leading integer of s. Range checks are left to
// the migrator.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	return version, nil
}
