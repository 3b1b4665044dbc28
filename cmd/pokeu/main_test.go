// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokeu/pokeu/internal/account"
)

// cliEnv isolates a test from the caller's config, data directory and
// environment.
func cliEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("DATABASE_URL", "")
	configFile = ""
	return dir
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, stdin io.Reader, args ...string) cliResult {
	t.Helper()
	configFile = ""
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return cliResult{stdout: out.String(), stderr: errOut.String(), err: err}
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	res := runCLI(t, nil, "--help")
	require.NoError(t, res.err)

	for _, sub := range []string{"serve", "migrate", "register", "login", "users", "status"} {
		assert.Contains(t, res.stdout, sub, "Help missing %q command", sub)
	}
	for _, flag := range []string{"--config", "--database-url", "--log-level", "--password-tier", "--allowed-domain"} {
		assert.Contains(t, res.stdout, flag)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFlag string
	}{
		{
			name:     "separate value",
			args:     []string{"--config", "/path/to/config.yaml", "--help"},
			wantFlag: "/path/to/config.yaml",
		},
		{
			name:     "with equals",
			args:     []string{"--config=/etc/pokeu.yaml", "--help"},
			wantFlag: "/etc/pokeu.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile = ""
			cmd := NewRootCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.wantFlag, configFile)
		})
	}
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestUnknownCommand(t *testing.T) {
	res := runCLI(t, nil, "nonexistent")
	require.Error(t, res.err)
}

func TestLoadConfig_Layers(t *testing.T) {
	dir := cliEnv(t)
	path := filepath.Join(dir, "pokeu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: /from/file.db
login:
  field: email
log:
  level: debug
`), 0o600))

	var got struct {
		url, level string
		field      account.LookupField
	}
	cmd := NewRootCmd()
	cmd.AddCommand(&cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			require.NotNil(t, logger)
			got.url, got.level, got.field = cfg.Database.URL, cfg.Log.Level, cfg.LoginField()
			return nil
		},
	})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--config", path, "--database-url", "/from/flag.db", "probe"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "/from/flag.db", got.url)
	assert.Equal(t, "debug", got.level)
	assert.Equal(t, account.FieldEmail, got.field)
}

func TestLoadConfig_ExplicitFileMustExist(t *testing.T) {
	dir := cliEnv(t)
	res := runCLI(t, nil, "--config", filepath.Join(dir, "missing.yaml"), "users", "list")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "no such file")
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "dev (commit: unknown, built: unknown)", formatVersion("dev", "unknown", "unknown"))
	assert.Equal(t, "1.0.0 (commit: abc123, built: 2026-01-15)", formatVersion("1.0.0", "abc123", "2026-01-15"))
}

func TestRun_ExitCodes(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"pokeu", "--help"}
	assert.Equal(t, 0, run())

	os.Args = []string{"pokeu", "nonexistent-command"}
	assert.Equal(t, 1, run())
}
