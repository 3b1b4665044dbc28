// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package telnet is the line-oriented front end where players register,
// confirm their email code and log in.
package telnet

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/observability"
)

const (
	defaultLoginEvery = 2 * time.Second
	defaultLoginBurst = 5
)

// Option configures connection handling.
type Option func(*handlerConfig)

// WithLoginField selects the field players log in with.
func WithLoginField(f account.LookupField) Option {
	return func(c *handlerConfig) { c.loginField = f }
}

// WithLoginThrottle allows burst failed logins per connection, refilling one
// every interval. A zero interval disables throttling.
func WithLoginThrottle(interval time.Duration, burst int) Option {
	return func(c *handlerConfig) {
		c.loginEvery = interval
		c.loginBurst = burst
	}
}

// WithMetrics records connection and command counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *handlerConfig) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *handlerConfig) { c.logger = l }
}

// Server is a telnet server.
type Server struct {
	addr     string
	auth     *AuthHandler
	cfg      handlerConfig
	listener net.Listener
	mu       sync.RWMutex
	conns    sync.WaitGroup
}

// NewServer creates a new telnet server.
func NewServer(addr string, auth *AuthHandler, opts ...Option) (*Server, error) {
	if auth == nil {
		return nil, oops.Errorf("auth handler is required")
	}
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.loginField.Valid() {
		return nil, oops.Code("TELNET_CONFIG_INVALID").With("login_field", string(cfg.loginField)).
			Errorf("unknown login field")
	}
	return &Server{addr: addr, auth: auth, cfg: cfg}, nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run starts the server and blocks until ctx is cancelled and every
// connection has closed.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return oops.Code("TELNET_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.cfg.logger.Info("telnet server started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			s.cfg.logger.Debug("error closing listener", "error", err)
		}
	}()

	defer s.conns.Wait()
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.cfg.logger.Error("accept failed", "error", err)
				continue
			}
		}
		if s.cfg.metrics != nil {
			s.cfg.metrics.ConnectionsTotal.WithLabelValues("telnet").Inc()
		}
		handler := newConnectionHandler(conn, s.auth, s.cfg)
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			handler.Handle(ctx)
		}()
	}
}
