// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pokeu/pokeu/internal/account"
)

// userRow is the listed view of an account. Password hashes are never shown.
type userRow struct {
	ID          int64     `json:"id" yaml:"id"`
	Email       string    `json:"email" yaml:"email"`
	DisplayName string    `json:"display_name" yaml:"display_name"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// NewUsersCmd creates the users subcommand.
func NewUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List and delete accounts",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Long: `List every account in id order. --match filters by a glob against
the email or the display name, e.g. --match '*@gmail.com'.`,
		Args: cobra.NoArgs,
		RunE: runUsersList,
	}
	listCmd.Flags().String("format", "table", "output format (table, yaml, json)")
	listCmd.Flags().String("match", "", "glob matched against email or display name")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <email>",
		Short: "Delete the account with the given email",
		Args:  cobra.ExactArgs(1),
		RunE:  runUsersDelete,
	})

	return cmd
}

func runUsersList(cmd *cobra.Command, _ []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	pattern, err := cmd.Flags().GetString("match")
	if err != nil {
		return err
	}
	if format != "table" && format != "yaml" && format != "json" {
		return oops.Code("FORMAT_INVALID").With("format", format).Errorf("format must be table, yaml or json")
	}
	var matcher glob.Glob
	if pattern != "" {
		if matcher, err = glob.Compile(pattern); err != nil {
			return oops.Code("MATCH_INVALID").With("match", pattern).Wrap(err)
		}
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, svc, err := openAccounts(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }() //nolint:errcheck // command result takes precedence

	accounts, err := svc.List(cmd.Context())
	if err != nil {
		return err
	}
	rows := filterUsers(accounts, matcher)
	return writeUsers(cmd.OutOrStdout(), format, rows)
}

func filterUsers(accounts []*account.Account, matcher glob.Glob) []userRow {
	rows := make([]userRow, 0, len(accounts))
	for _, a := range accounts {
		if matcher != nil && !matcher.Match(a.Email) && !matcher.Match(a.DisplayName) {
			continue
		}
		rows = append(rows, userRow{ID: a.ID, Email: a.Email, DisplayName: a.DisplayName, CreatedAt: a.CreatedAt})
	}
	return rows
}

func writeUsers(w io.Writer, format string, rows []userRow) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return oops.Wrap(err)
		}
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return oops.Wrap(err)
		}
		if err := enc.Close(); err != nil {
			return oops.Wrap(err)
		}
	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tEMAIL\tDISPLAY NAME\tCREATED")
		for _, r := range rows {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Email, r.DisplayName, r.CreatedAt.Format(time.RFC3339))
		}
		if err := tw.Flush(); err != nil {
			return oops.Wrap(err)
		}
	}
	return nil
}

func runUsersDelete(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, svc, err := openAccounts(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }() //nolint:errcheck // command result takes precedence

	n, err := svc.Delete(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cmd.Printf("Deleted %d account(s).\n", n)
	return nil
}
