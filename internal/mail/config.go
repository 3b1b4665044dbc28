// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package mail

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/samber/oops"
)

// Environment variable names read by LoadConfig.
const (
	EnvHost     = "SMTP_HOST"
	EnvPort     = "SMTP_PORT"
	EnvUsername = "SMTP_USERNAME"
	EnvPassword = "SMTP_PASSWORD"
	EnvFrom     = "SMTP_FROM"
	EnvFromName = "SMTP_FROM_NAME"
)

// DefaultPort is the submission port used when SMTP_PORT is unset.
const DefaultPort = 587

// Config holds SMTP credentials.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// LoadConfig reads SMTP settings from the environment. When envFile exists
// its variables are loaded first; variables already set in the process win.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, oops.Code("MAIL_ENV_FILE_INVALID").With("path", envFile).Wrap(err)
		}
	}

	cfg := Config{
		Host:     strings.TrimSpace(os.Getenv(EnvHost)),
		Port:     DefaultPort,
		Username: strings.TrimSpace(os.Getenv(EnvUsername)),
		Password: os.Getenv(EnvPassword),
		From:     strings.TrimSpace(os.Getenv(EnvFrom)),
		FromName: strings.TrimSpace(os.Getenv(EnvFromName)),
	}
	if raw := strings.TrimSpace(os.Getenv(EnvPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, oops.Code("MAIL_CONFIG_INVALID").With("port", raw).Errorf("%s must be a TCP port", EnvPort)
		}
		cfg.Port = port
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return cfg, nil
}

// Validate reports every missing required variable at once.
func (c Config) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, EnvHost)
	}
	if c.Username == "" {
		missing = append(missing, EnvUsername)
	}
	if c.Password == "" {
		missing = append(missing, EnvPassword)
	}
	if len(missing) > 0 {
		return oops.Code("MAIL_CONFIG_MISSING").
			With("missing", missing).
			Errorf("missing SMTP settings: %s", strings.Join(missing, ", "))
	}
	return nil
}
