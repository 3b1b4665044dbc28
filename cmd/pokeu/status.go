// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pokeu/pokeu/internal/control"
)

// statusChecker queries a control server. Replaced in tests.
var statusChecker = control.Check

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running server",
		Long: `Query the gRPC health service of a running "pokeu serve". The exit
status is non-zero unless the account store is being served.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
	cmd.Flags().String("control-addr", "", "control server address (default: control.addr from config)")
	cmd.Flags().Bool("json", false, "print status as JSON")
	cmd.Flags().Duration("timeout", 5*time.Second, "query timeout")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	asJSON, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	timeout, err := flags.GetDuration("timeout")
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	addr := cfg.Control.Addr
	if addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("control address is not configured")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	st, err := statusChecker(ctx, addr, control.ServiceAccounts)
	if err != nil {
		return err
	}

	if asJSON {
		out, err := json.Marshal(struct {
			Addr    string         `json:"addr"`
			Service string         `json:"service"`
			Health  control.Status `json:"health"`
		}{addr, st.Service, st})
		if err != nil {
			return oops.Wrap(err)
		}
		cmd.Println(string(out))
	} else {
		cmd.Printf("%s %s: %s\n", addr, st.Service, st)
	}

	if !st.Serving() {
		return oops.Code("NOT_SERVING").With("addr", addr).Errorf("account store is not serving")
	}
	return nil
}
