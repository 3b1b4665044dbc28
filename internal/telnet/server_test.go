// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package telnet_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/observability"
	"github.com/pokeu/pokeu/internal/telnet"
	"github.com/pokeu/pokeu/pkg/errutil"
)

func newAuth(t *testing.T) *telnet.AuthHandler {
	t.Helper()
	auth, err := telnet.NewAuthHandler(&stubAccounts{}, &stubVerifier{})
	require.NoError(t, err)
	return auth
}

func TestNewServer_Validation(t *testing.T) {
	_, err := telnet.NewServer(":0", nil)
	require.Error(t, err)

	_, err = telnet.NewServer(":0", newAuth(t), telnet.WithLoginField("nickname"))
	errutil.AssertErrorCode(t, err, "TELNET_CONFIG_INVALID")
}

func TestServer_AcceptsAndDrainsOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	srv, err := telnet.NewServer("127.0.0.1:0", newAuth(t),
		telnet.WithMetrics(metrics),
		telnet.WithLoginField(account.FieldEmail),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 10*time.Millisecond)

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Welcome to PokeU!\n", line)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ConnectionsTotal.WithLabelValues("telnet")), 0)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Server is shutting down.\n", line)
}

func TestServer_ListenFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = taken.Close() }()

	srv, err := telnet.NewServer(taken.Addr().String(), newAuth(t))
	require.NoError(t, err)
	err = srv.Run(context.Background())
	errutil.AssertErrorCode(t, err, "TELNET_LISTEN_FAILED")
}
