// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package xdg resolves XDG Base Directory paths for PokeU.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "pokeu"

func dir(env string, fallback ...string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", oops.Code("XDG_NO_HOME").With("env", env).Errorf("neither %s nor HOME is set", env)
	}
	return filepath.Join(append(append([]string{home}, fallback...), appName)...), nil
}

// ConfigDir returns $XDG_CONFIG_HOME/pokeu, defaulting to ~/.config/pokeu.
func ConfigDir() (string, error) {
	return dir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/pokeu, defaulting to ~/.local/share/pokeu.
func DataDir() (string, error) {
	return dir("XDG_DATA_HOME", ".local", "share")
}

// ConfigFile is the default location of config.yaml.
func ConfigFile() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config.yaml"), nil
}

// DatabaseFile is the default SQLite database location.
func DatabaseFile() (string, error) {
	d, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "pokeu.db"), nil
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
