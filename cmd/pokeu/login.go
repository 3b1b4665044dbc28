// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pokeu/pokeu/internal/account"
)

// NewLoginCmd creates the login subcommand.
func NewLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check a login from the terminal",
		Long: `Prompt for an identifier and password and report the account they
resolve to. --by selects the identifier (default: login.field).`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
	cmd.Flags().String("by", "", "identifier to log in with (email, display_name)")
	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	by, err := cmd.Flags().GetString("by")
	if err != nil {
		return err
	}
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	field := cfg.LoginField()
	if by != "" {
		var ok bool
		if field, ok = account.ParseLookupField(by); !ok {
			return oops.Code("CONFIG_INVALID").With("by", by).Errorf("--by must be email or display_name")
		}
	}

	ctx := cmd.Context()
	st, svc, err := openAccounts(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }() //nolint:errcheck // command result takes precedence

	p := newPrompter(cmd)
	label := "Display name: "
	if field == account.FieldEmail {
		label = "Email: "
	}
	identifier, err := p.line(label)
	if err != nil {
		return err
	}
	password, err := p.secret("Password: ")
	if err != nil {
		return err
	}

	id, err := svc.Login(ctx, field, identifier, password)
	if err != nil {
		return err
	}
	cmd.Printf("Logged in as %s <%s> (account %d).\n", id.DisplayName, id.Email, id.ID)
	return nil
}
