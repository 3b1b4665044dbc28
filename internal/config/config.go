// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package config loads PokeU settings from defaults, an optional YAML file,
// the environment, and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/logging"
	"github.com/pokeu/pokeu/internal/verify"
)

// Config is the full application configuration.
type Config struct {
	Database Database `koanf:"database"`
	Telnet   Listener `koanf:"telnet"`
	Metrics  Listener `koanf:"metrics"`
	Control  Listener `koanf:"control"`
	Log      Log      `koanf:"log"`
	Policy   Policy   `koanf:"policy"`
	Verify   Verify   `koanf:"verify"`
	Login    Login    `koanf:"login"`
	Mail     Mail     `koanf:"mail"`
}

// Database selects the storage backend. An empty URL uses the SQLite file
// in the XDG data directory.
type Database struct {
	URL string `koanf:"url"`
}

// Listener is a TCP listen address. Empty disables the listener.
type Listener struct {
	Addr string `koanf:"addr"`
}

// Log configures logging output.
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Policy configures account validation.
type Policy struct {
	AllowedDomains []string `koanf:"allowed_domains"`
	PasswordTier   string   `koanf:"password_tier"`
}

// Verify bounds the email-code handshake. Zero values mean unbounded.
type Verify struct {
	CodeTTL        time.Duration `koanf:"code_ttl"`
	MaxAttempts    int           `koanf:"max_attempts"`
	ResendInterval time.Duration `koanf:"resend_interval"`
}

// Login configures the default lookup field for interactive login.
type Login struct {
	Field string `koanf:"field"`
}

// Mail configures code delivery.
type Mail struct {
	EnvFile string `koanf:"env_file"`
}

// EnvDatabaseURL overrides database.url when set.
const EnvDatabaseURL = "DATABASE_URL"

// Default returns the built-in configuration.
func Default() Config {
	policy := account.DefaultPolicy()
	return Config{
		Telnet:  Listener{Addr: ":4201"},
		Metrics: Listener{Addr: "127.0.0.1:9100"},
		Control: Listener{Addr: "127.0.0.1:9101"},
		Log:     Log{Level: "info", Format: "json"},
		Policy: Policy{
			AllowedDomains: policy.AllowedDomains,
			PasswordTier:   string(policy.PasswordTier),
		},
		Login: Login{Field: string(account.FieldDisplayName)},
		Mail:  Mail{EnvFile: ".env"},
	}
}

// defaults flattens Default into koanf keys.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"database.url":           d.Database.URL,
		"telnet.addr":            d.Telnet.Addr,
		"metrics.addr":           d.Metrics.Addr,
		"control.addr":           d.Control.Addr,
		"log.level":              d.Log.Level,
		"log.format":             d.Log.Format,
		"policy.allowed_domains": d.Policy.AllowedDomains,
		"policy.password_tier":   d.Policy.PasswordTier,
		"verify.code_ttl":        d.Verify.CodeTTL,
		"verify.max_attempts":    d.Verify.MaxAttempts,
		"verify.resend_interval": d.Verify.ResendInterval,
		"login.field":            d.Login.Field,
		"mail.env_file":          d.Mail.EnvFile,
	}
}

// flagKeys maps command-line flag names to configuration keys. Flags not
// listed here are not configuration.
var flagKeys = map[string]string{
	"database-url":   "database.url",
	"telnet-addr":    "telnet.addr",
	"metrics-addr":   "metrics.addr",
	"control-addr":   "control.addr",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"login-field":    "login.field",
	"smtp-env-file":  "mail.env_file",
	"code-ttl":       "verify.code_ttl",
	"max-attempts":   "verify.max_attempts",
	"resend-every":   "verify.resend_interval",
	"password-tier":  "policy.password_tier",
	"allowed-domain": "policy.allowed_domains",
}

// RegisterServeFlags adds the server flags to fs. Their defaults only apply
// when neither the file nor the environment sets the key.
func RegisterServeFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("telnet-addr", d.Telnet.Addr, "telnet listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	fs.String("control-addr", d.Control.Addr, "gRPC control listen address (empty disables)")
	fs.String("smtp-env-file", d.Mail.EnvFile, "dotenv file with SMTP settings")
	fs.Duration("code-ttl", d.Verify.CodeTTL, "verification code lifetime (0 = no expiry)")
	fs.Int("max-attempts", d.Verify.MaxAttempts, "wrong codes allowed per request (0 = unlimited)")
	fs.Duration("resend-every", d.Verify.ResendInterval, "minimum time between code requests (0 = unlimited)")
}

// RegisterGlobalFlags adds the flags shared by every command to fs.
func RegisterGlobalFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("database-url", d.Database.URL, "database URL (sqlite path or postgres://)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "log format (json, text)")
	fs.String("password-tier", d.Policy.PasswordTier, "password rules (minimal, strict)")
	fs.StringSlice("allowed-domain", d.Policy.AllowedDomains, "accepted email suffix (repeatable)")
	fs.String("login-field", d.Login.Field, "default login identifier (email, display_name)")
}

// Source describes where to read the YAML layer from.
type Source struct {
	Path string
	// Required makes a missing file an error. Default paths are optional.
	Required bool
}

// Load builds the configuration. flags may be nil.
func Load(src Source, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if src.Path != "" {
		_, err := os.Stat(src.Path)
		switch {
		case err == nil:
			if err := k.Load(file.Provider(src.Path), yaml.Parser()); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", src.Path).Wrap(err)
			}
		case errors.Is(err, fs.ErrNotExist) && !src.Required:
			// The default location is optional.
		default:
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", src.Path).Wrap(err)
		}
	}

	if url := os.Getenv(EnvDatabaseURL); url != "" {
		if err := k.Set("database.url", url); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", "database.url").Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every value that has a closed set of options.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if err := logging.ValidateFormat(c.Log.Format); err != nil {
		return err
	}
	if _, ok := account.ParseLookupField(c.Login.Field); !ok {
		return oops.Code("CONFIG_INVALID").With("login.field", c.Login.Field).
			Errorf("login.field must be %q or %q", account.FieldEmail, account.FieldDisplayName)
	}
	if err := c.AccountPolicy().Validate(); err != nil {
		return err
	}
	if c.Verify.CodeTTL < 0 || c.Verify.MaxAttempts < 0 || c.Verify.ResendInterval < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("verify bounds must not be negative")
	}
	return nil
}

// AccountPolicy returns the validation policy.
func (c *Config) AccountPolicy() account.Policy {
	return account.Policy{
		AllowedDomains: c.Policy.AllowedDomains,
		PasswordTier:   account.PasswordTier(c.Policy.PasswordTier),
	}
}

// LoginField returns the parsed default login field.
func (c *Config) LoginField() account.LookupField {
	f, _ := account.ParseLookupField(c.Login.Field)
	return f
}

// VerifyOptions returns the handshake bounds as options.
func (c *Config) VerifyOptions() []verify.Option {
	return []verify.Option{
		verify.WithCodeTTL(c.Verify.CodeTTL),
		verify.WithMaxAttempts(c.Verify.MaxAttempts),
		verify.WithResendInterval(c.Verify.ResendInterval),
	}
}
