// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package verify_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/account/sqlite"
	"github.com/pokeu/pokeu/internal/verify"
	"github.com/pokeu/pokeu/pkg/errutil"
)

// outbox records delivered codes by address.
type outbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (o *outbox) Send(_ context.Context, to, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes[to] = code
	return nil
}

func (o *outbox) last(to string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.codes[to]
}

func TestHandshake_WithAccountService(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "pokeu.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(ctx, db))

	svc, err := account.NewService(sqlite.NewRepository(db), account.NewMultiHasher(), account.DefaultPolicy())
	require.NoError(t, err)
	box := &outbox{codes: map[string]string{}}
	hs, err := verify.New(svc, box)
	require.NoError(t, err)

	sess := verify.NewSession()
	require.NoError(t, hs.RequestCode(ctx, sess, "Brock@Gmail.com", "Onix#Rock9", "Brock"))
	code := box.last("Brock@Gmail.com")
	require.Len(t, code, 4)

	id, err := hs.SubmitCode(ctx, sess, code)
	require.NoError(t, err)
	assert.Equal(t, "brock@gmail.com", id.Email)

	got, err := svc.Login(ctx, account.FieldDisplayName, "Brock", "Onix#Rock9")
	require.NoError(t, err)
	assert.Equal(t, id.ID, got.ID)

	// A second handshake for the same email fails its pre-check.
	err = hs.RequestCode(ctx, verify.NewSession(), "brock@gmail.com", "Onix#Rock9", "Brock2")
	errutil.AssertErrorCode(t, err, account.CodeEmailTaken)

	// Validation failures surface before any code is sent.
	err = hs.RequestCode(ctx, verify.NewSession(), "gary@yahoo.com", "Eevee123!", "Gary")
	errutil.AssertErrorCode(t, err, account.CodeValidationFailed)
	assert.Empty(t, box.last("gary@yahoo.com"))
}
