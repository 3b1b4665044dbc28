// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package control

import (
	"context"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// Status is a health check result.
type Status struct {
	Service  string
	Response *healthpb.HealthCheckResponse
}

// Serving reports whether the service is SERVING.
func (s Status) Serving() bool {
	return s.Response.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// String returns the status name, e.g. "SERVING".
func (s Status) String() string {
	return s.Response.GetStatus().String()
}

// MarshalJSON renders the response in protobuf's canonical JSON form.
func (s Status) MarshalJSON() ([]byte, error) {
	return protojson.Marshal(s.Response)
}

// Check queries the health service at addr. An empty service asks about the
// server as a whole.
func Check(ctx context.Context, addr, service string) (Status, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return Status{}, oops.Code("CONTROL_DIAL_FAILED").With("addr", addr).Wrap(err)
	}
	defer func() { _ = conn.Close() }() //nolint:errcheck // check result takes precedence

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return Status{}, oops.Code("CONTROL_CHECK_FAILED").With("addr", addr).With("service", service).Wrap(err)
	}
	return Status{Service: service, Response: resp}, nil
}
