// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/config"
	"github.com/pokeu/pokeu/internal/logging"
	"github.com/pokeu/pokeu/internal/store"
	"github.com/pokeu/pokeu/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the PokeU CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pokeu",
		Short: "PokeU - account server for the PokeU game",
		Long: `PokeU runs the account server for the PokeU game: registration with
email verification codes, login, and the tools to administer accounts.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/pokeu/config.yaml)")
	config.RegisterGlobalFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewRegisterCmd())
	cmd.AddCommand(NewLoginCmd())
	cmd.AddCommand(NewUsersCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// loadConfig reads the layered configuration for cmd and installs the
// default logger. An explicit --config must exist; the XDG default may not.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	src := config.Source{Path: configFile, Required: configFile != ""}
	if src.Path == "" {
		if path, err := xdg.ConfigFile(); err == nil {
			src.Path = path
		}
	}

	cfg, err := config.Load(src, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup("pokeu", version, cfg.Log.Format, level, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openAccounts opens and migrates the configured store and builds the
// account service on top of it. The caller closes the store.
func openAccounts(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, *account.Service, error) {
	st, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close() //nolint:errcheck // migration error takes precedence
		return nil, nil, err
	}
	svc, err := account.NewServiceWithLogger(st.Accounts(), account.NewMultiHasher(), cfg.AccountPolicy(), logger)
	if err != nil {
		_ = st.Close() //nolint:errcheck // construction error takes precedence
		return nil, nil, err
	}
	return st, svc, nil
}
