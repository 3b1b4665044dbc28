// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package observability serves Prometheus metrics and HTTP health probes for
// the account server.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// Probe paths.
const (
	PathMetrics   = "/metrics"
	PathLiveness  = "/healthz/liveness"
	PathReadiness = "/healthz/readiness"
)

const (
	readHeaderTimeout = 10 * time.Second
	probeTimeout      = time.Second
)

// ReadinessFunc reports why the server cannot take players yet; nil means
// ready. It is usually a store ping.
type ReadinessFunc func(ctx context.Context) error

// accountOperations and verificationEvents are package-level so the account
// service and the handshake can record without a Server handle.
var (
	accountOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokeu_account_operations_total",
			Help: "Account register and login attempts by outcome.",
		},
		[]string{"operation", "outcome"},
	)
	verificationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pokeu_verification_events_total",
			Help: "Verification handshake transitions.",
		},
		[]string{"event"},
	)
)

// RecordAccountOperation counts one register or login attempt. outcome is
// success, rejected or error.
func RecordAccountOperation(operation, outcome string) {
	accountOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordVerificationEvent counts one handshake transition such as issued,
// mismatch or confirmed.
func RecordVerificationEvent(event string) {
	verificationEvents.WithLabelValues(event).Inc()
}

// Metrics holds the counters owned by the front ends.
type Metrics struct {
	ConnectionsTotal *prometheus.CounterVec
	CommandsTotal    *prometheus.CounterVec
}

// NewMetrics registers the front-end counters and the shared account and
// verification counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pokeu_connections_total",
			Help: "Accepted connections by front end.",
		}, []string{"type"}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pokeu_commands_total",
			Help: "Front-end commands by command and status.",
		}, []string{"command", "status"}),
	}
	reg.MustRegister(m.ConnectionsTotal, m.CommandsTotal, accountOperations, verificationEvents)
	return m
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server exposes PathMetrics, PathLiveness and PathReadiness over HTTP.
type Server struct {
	addr     string
	ready    ReadinessFunc
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *Metrics

	listener net.Listener
	http     *http.Server
	running  atomic.Bool
}

// NewServer creates a server for addr ("host:port"). A nil ready func means
// the server always reports ready.
func NewServer(addr string, ready ReadinessFunc, opts ...Option) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s := &Server{
		addr:     addr,
		ready:    ready,
		logger:   slog.Default(),
		registry: registry,
		metrics:  NewMetrics(registry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the counters registered on this server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start listens and serves in the background. The returned channel receives
// a serve error if one occurs and is closed once serving stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_ALREADY_RUNNING").Errorf("observability server is already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle(PathMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc(PathLiveness, s.handleLiveness)
	mux.HandleFunc(PathReadiness, s.handleReadiness)
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", err)
			errCh <- err
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("OBSERVABILITY_STOP_FAILED").Wrap(err)
	}
	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, "ok")
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		writeProbe(w, http.StatusOK, "ok")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()
	if err := s.ready(ctx); err != nil {
		s.logger.WarnContext(ctx, "readiness probe failed", "error", err)
		writeProbe(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeProbe(w, http.StatusOK, "ok")
}

func writeProbe(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // the prober may already be gone
	w.Write([]byte(body + "\n"))
}
