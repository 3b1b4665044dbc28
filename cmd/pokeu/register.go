// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/mail"
	"github.com/pokeu/pokeu/internal/verify"
)

// consoleSender prints codes instead of mailing them.
type consoleSender struct {
	out io.Writer
}

func (s consoleSender) Send(_ context.Context, to, code string) error {
	_, err := fmt.Fprintf(s.out, "[console] verification code for %s: %s\n", to, code)
	return err
}

// registerSender picks the code sender for the register command.
var registerSender = func(cmd *cobra.Command, envFile string, console bool) (mail.Sender, error) {
	if console {
		return consoleSender{out: cmd.ErrOrStderr()}, nil
	}
	cfg, err := mail.LoadConfig(envFile)
	if err != nil {
		return nil, err
	}
	return mail.NewSMTPSender(cfg)
}

// NewRegisterCmd creates the register subcommand.
func NewRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account from the terminal",
		Long: `Prompt for an email, display name and password, mail a verification
code to the address and create the account once the code is entered.
An empty code cancels the registration.`,
		Args: cobra.NoArgs,
		RunE: runRegister,
	}
	cmd.Flags().Bool("console", false, "print the code to the terminal instead of emailing it")
	cmd.Flags().String("smtp-env-file", ".env", "dotenv file with SMTP settings")
	return cmd
}

func runRegister(cmd *cobra.Command, _ []string) error {
	console, err := cmd.Flags().GetBool("console")
	if err != nil {
		return err
	}
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sender, err := registerSender(cmd, cfg.Mail.EnvFile, console)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, svc, err := openAccounts(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }() //nolint:errcheck // command result takes precedence

	hs, err := verify.New(svc, sender, append(cfg.VerifyOptions(), verify.WithLogger(logger))...)
	if err != nil {
		return err
	}

	p := newPrompter(cmd)
	email, err := p.line("Email: ")
	if err != nil {
		return err
	}
	name, err := p.line("Display name: ")
	if err != nil {
		return err
	}
	password, err := p.secret("Password: ")
	if err != nil {
		return err
	}

	sess := verify.NewSession()
	defer hs.Abandon(sess)
	if err := hs.RequestCode(ctx, sess, email, password, name); err != nil {
		return err
	}
	cmd.Printf("A verification code was sent to %s.\n", account.NormalizeEmail(email))

	for {
		code, err := p.line("Code: ")
		if err != nil {
			return err
		}
		code = strings.TrimSpace(code)
		if code == "" {
			cmd.Println("Registration cancelled.")
			return nil
		}
		id, err := hs.SubmitCode(ctx, sess, code)
		if err == nil {
			cmd.Printf("Account %d created for %s <%s>.\n", id.ID, id.DisplayName, id.Email)
			return nil
		}
		if account.ErrorCode(err) != verify.CodeMismatch {
			return err
		}
		cmd.Println(verify.UserMessage(err))
	}
}
