// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions bounds the startup connection attempts.
type ConnectOptions struct {
	MaxRetries   uint64
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConnectOptions returns the retry bounds used by the server.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		MaxRetries:   5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// newPool and ping are seams for testing.
var (
	newPool = pgxpool.New
	ping    = func(ctx context.Context, pool *pgxpool.Pool) error { return pool.Ping(ctx) }
)

// Connect opens a pool for dsn and pings it, retrying with exponential
// backoff while the database comes up.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	backoff := retry.NewExponential(opts.InitialDelay)
	backoff = retry.WithCappedDuration(opts.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(opts.MaxRetries, backoff)

	var pool *pgxpool.Pool
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := newPool(ctx, dsn)
		if err != nil {
			// A malformed DSN will not fix itself.
			return err
		}
		if err := ping(ctx, p); err != nil {
			p.Close()
			slog.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return pool, nil
}
