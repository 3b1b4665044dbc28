// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package control

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokeu/pokeu/pkg/errutil"
)

func startServer(t *testing.T) *GRPCServer {
	t.Helper()
	s := NewGRPCServer()
	errCh, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Stop(context.Background()))
		assert.NoError(t, <-errCh)
	})
	return s
}

func check(t *testing.T, s *GRPCServer, service string) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := Check(ctx, s.Addr(), service)
	require.NoError(t, err)
	return st
}

func TestGRPCServer_ServingStatus(t *testing.T) {
	s := startServer(t)

	st := check(t, s, "")
	assert.False(t, st.Serving())
	assert.Equal(t, "NOT_SERVING", st.String())

	s.SetServing(true)
	assert.True(t, check(t, s, "").Serving())
	assert.True(t, check(t, s, ServiceAccounts).Serving())
}

func TestGRPCServer_DoubleStart(t *testing.T) {
	s := startServer(t)
	_, err := s.Start("127.0.0.1:0")
	errutil.AssertErrorCode(t, err, "CONTROL_ALREADY_RUNNING")
}

func TestGRPCServer_ListenFailure(t *testing.T) {
	s := startServer(t)
	_, err := NewGRPCServer().Start(s.Addr())
	errutil.AssertErrorCode(t, err, "CONTROL_LISTEN_FAILED")
}

func TestGRPCServer_WatchMirrorsProbe(t *testing.T) {
	s := startServer(t)

	var healthy atomic.Bool
	healthy.Store(true)
	s.Watch(10*time.Millisecond, func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("database is locked")
	})

	require.Eventually(t, func() bool { return check(t, s, ServiceAccounts).Serving() },
		2*time.Second, 10*time.Millisecond)

	healthy.Store(false)
	require.Eventually(t, func() bool { return !check(t, s, ServiceAccounts).Serving() },
		2*time.Second, 10*time.Millisecond)
}

func TestCheck_UnknownService(t *testing.T) {
	s := startServer(t)
	_, err := Check(context.Background(), s.Addr(), "pokeu.battles")
	errutil.AssertErrorCode(t, err, "CONTROL_CHECK_FAILED")
	errutil.AssertErrorContext(t, err, "service", "pokeu.battles")
}

func TestStatus_MarshalJSON(t *testing.T) {
	s := startServer(t)
	s.SetServing(true)

	out, err := json.Marshal(check(t, s, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"SERVING"}`, string(out))
}
