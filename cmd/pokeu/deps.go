// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/control"
	"github.com/pokeu/pokeu/internal/mail"
	"github.com/pokeu/pokeu/internal/observability"
	"github.com/pokeu/pokeu/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// MailConfigLoader reads SMTP settings.
	// Default: mail.LoadConfig
	MailConfigLoader func(envFile string) (mail.Config, error)

	// SenderFactory creates the verification code sender.
	// Default: mail.NewSMTPSender
	SenderFactory func(cfg mail.Config, logger *slog.Logger) (mail.Sender, error)

	// StoreOpener opens the account store.
	// Default: store.Open
	StoreOpener func(ctx context.Context, url string) (AccountStore, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessFunc, logger *slog.Logger) ObservabilityServer

	// ControlServerFactory creates the gRPC health server.
	// Default: control.NewGRPCServer
	ControlServerFactory func() ControlServer
}

// AccountStore wraps the methods used by serve from store.Store.
type AccountStore interface {
	Accounts() account.Repository
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Target() store.Target
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// ControlServer wraps the methods used from control.GRPCServer.
type ControlServer interface {
	Start(addr string) (<-chan error, error)
	Watch(interval time.Duration, check control.CheckFunc)
	Stop(ctx context.Context) error
	Addr() string
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.MailConfigLoader == nil {
		out.MailConfigLoader = mail.LoadConfig
	}
	if out.SenderFactory == nil {
		out.SenderFactory = func(cfg mail.Config, logger *slog.Logger) (mail.Sender, error) {
			return mail.NewSMTPSender(cfg, mail.WithLogger(logger))
		}
	}
	if out.StoreOpener == nil {
		out.StoreOpener = func(ctx context.Context, url string) (AccountStore, error) {
			return store.Open(ctx, url)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessFunc, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, observability.WithLogger(logger))
		}
	}
	if out.ControlServerFactory == nil {
		out.ControlServerFactory = func() ControlServer {
			return control.NewGRPCServer()
		}
	}
	return &out
}
