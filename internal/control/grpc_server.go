// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package control exposes the standard gRPC health service so operators can
// query a running server with `pokeu status`.
package control

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceAccounts is the health service name reported for the account store.
const ServiceAccounts = "pokeu.accounts"

// CheckFunc probes a dependency; nil means healthy.
type CheckFunc func(ctx context.Context) error

// GRPCServer serves grpc.health.v1 on a plain TCP listener. It is meant for
// loopback addresses and carries no transport security.
type GRPCServer struct {
	health     *health.Server
	grpcServer *grpc.Server
	listener   net.Listener

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewGRPCServer creates a server whose overall status starts as NOT_SERVING.
func NewGRPCServer() *GRPCServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceAccounts, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCServer{health: hs}
}

// Start listens on addr. The returned channel receives the Serve result
// exactly once.
func (s *GRPCServer) Start(addr string) (<-chan error, error) {
	if s.listener != nil {
		return nil, oops.Code("CONTROL_ALREADY_RUNNING").Errorf("control server is already running")
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, oops.Code("CONTROL_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener

	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	errCh := make(chan error, 1)
	go func() {
		err := s.grpcServer.Serve(listener)
		if err != nil {
			slog.Error("control gRPC server error", "error", err)
		}
		errCh <- err
	}()
	return errCh, nil
}

// Addr returns the bound address, or "" before Start.
func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SetServing sets the status of the whole server and the accounts service.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceAccounts, status)
}

// Watch runs check every interval and mirrors its result into the health
// status until Stop. The first probe runs immediately.
func (s *GRPCServer) Watch(interval time.Duration, check CheckFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			probeCtx, probeCancel := context.WithTimeout(ctx, interval)
			err := check(probeCtx)
			probeCancel()
			if err != nil && ctx.Err() == nil {
				slog.Warn("health probe failed", "error", err)
			}
			s.SetServing(err == nil)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop marks the server as shutting down and stops serving.
func (s *GRPCServer) Stop(_ context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	s.health.Shutdown()
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	return nil
}
