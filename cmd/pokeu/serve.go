// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/config"
	"github.com/pokeu/pokeu/internal/observability"
	"github.com/pokeu/pokeu/internal/telnet"
	"github.com/pokeu/pokeu/internal/verify"
)

const (
	shutdownTimeout     = 5 * time.Second
	healthWatchInterval = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account server (telnet, metrics, control)",
		Long: `Start the telnet front end where players register and log in, along
with the metrics/health HTTP server and the gRPC health control server.
SMTP settings must be present in the environment or the .env file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, logger, cmd, nil)
		},
	}
	config.RegisterServeFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps runs the server until a signal, a server error or ctx
// cancellation. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	mailCfg, err := deps.MailConfigLoader(cfg.Mail.EnvFile)
	if err != nil {
		return err
	}
	if err := mailCfg.Validate(); err != nil {
		return err
	}
	sender, err := deps.SenderFactory(mailCfg, logger)
	if err != nil {
		return err
	}

	st, err := deps.StoreOpener(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("error closing account store", "error", err)
		}
	}()
	if err := st.Migrate(ctx); err != nil {
		return oops.Code("MIGRATION_FAILED").With("backend", string(st.Target().Backend)).Wrap(err)
	}
	logger.Info("account store ready", "backend", string(st.Target().Backend))

	svc, err := account.NewServiceWithLogger(st.Accounts(), account.NewMultiHasher(), cfg.AccountPolicy(), logger)
	if err != nil {
		return err
	}
	hs, err := verify.New(svc, sender, append(cfg.VerifyOptions(), verify.WithLogger(logger))...)
	if err != nil {
		return err
	}
	auth, err := telnet.NewAuthHandlerWithLogger(svc, hs, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), shutdownTimeout)
	}

	var metrics *observability.Metrics
	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, st.Ping, logger)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		defer func() {
			sctx, scancel := shutdownCtx()
			defer scancel()
			if err := obsServer.Stop(sctx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metrics = obsServer.Metrics()
	}

	if cfg.Control.Addr != "" {
		controlServer := deps.ControlServerFactory()
		controlErrCh, err := controlServer.Start(cfg.Control.Addr)
		if err != nil {
			return err
		}
		defer func() {
			sctx, scancel := shutdownCtx()
			defer scancel()
			if err := controlServer.Stop(sctx); err != nil {
				logger.Warn("error stopping control server", "error", err)
			}
		}()
		controlServer.Watch(healthWatchInterval, st.Ping)
		go monitorServerErrors(ctx, cancel, controlErrCh, "control-grpc")
		logger.Info("control server started", "addr", controlServer.Addr())
	}

	telnetServer, err := telnet.NewServer(cfg.Telnet.Addr, auth,
		telnet.WithLoginField(cfg.LoginField()),
		telnet.WithMetrics(metrics),
		telnet.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	telnetErrCh := make(chan error, 1)
	telnetDone := make(chan struct{})
	go func() {
		defer close(telnetDone)
		if err := telnetServer.Run(ctx); err != nil {
			telnetErrCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("PokeU server started")

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case runErr = <-telnetErrCh:
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	cancel()
	<-telnetDone
	logger.Info("shutdown complete")
	return runErr
}

// monitorServerErrors cancels ctx when a server reports an error. It returns
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
