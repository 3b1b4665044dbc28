// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package account_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/account/mocks"
	"github.com/pokeu/pokeu/pkg/errutil"
)

const (
	validEmail    = "ash@gmail.com"
	validName     = "Ash"
	validPassword = "Pikachu1!"
)

func newService(t *testing.T) (*account.Service, *mocks.MockRepository, *mocks.MockPasswordHasher) {
	t.Helper()
	repo := mocks.NewMockRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc, err := account.NewService(repo, hasher, account.DefaultPolicy())
	require.NoError(t, err)
	return svc, repo, hasher
}

func TestNewService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		repo        account.Repository
		hasher      account.PasswordHasher
		logger      *slog.Logger
		expectError string
	}{
		{
			name:        "nil repository",
			hasher:      mocks.NewMockPasswordHasher(t),
			logger:      slog.Default(),
			expectError: "account repository is required",
		},
		{
			name:        "nil hasher",
			repo:        mocks.NewMockRepository(t),
			logger:      slog.Default(),
			expectError: "password hasher is required",
		},
		{
			name:        "nil logger",
			repo:        mocks.NewMockRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			expectError: "logger is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := account.NewServiceWithLogger(tt.repo, tt.hasher, account.DefaultPolicy(), tt.logger)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestNewService_InvalidPolicy(t *testing.T) {
	_, err := account.NewService(mocks.NewMockRepository(t), mocks.NewMockPasswordHasher(t), account.Policy{})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "POLICY_INVALID")
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account with normalized fields", func(t *testing.T) {
		svc, repo, hasher := newService(t)

		repo.On("Exists", mock.Anything, account.FieldEmail, validEmail).Return(false, nil)
		repo.On("Exists", mock.Anything, account.FieldDisplayName, validName).Return(false, nil)
		hasher.On("Hash", validPassword).Return("$argon2id$hash", nil)
		repo.On("Insert", mock.Anything, validEmail, validName, "$argon2id$hash", mock.AnythingOfType("time.Time")).
			Return(int64(7), nil)

		id, err := svc.Register(ctx, "  ASH@Gmail.com ", validPassword, "  Ash ")
		require.NoError(t, err)
		assert.Equal(t, &account.Identity{ID: 7, Email: validEmail, DisplayName: validName}, id)
	})

	t.Run("validation short-circuits in order email, name, password", func(t *testing.T) {
		svc, _, _ := newService(t)

		_, err := svc.Register(ctx, "ash@yahoo.com", "x", "A")
		errutil.AssertErrorContext(t, err, "rule", account.RuleEmailDomain)

		_, err = svc.Register(ctx, validEmail, "x", "A")
		errutil.AssertErrorContext(t, err, "rule", account.RuleDisplayName)

		_, err = svc.Register(ctx, validEmail, "x", validName)
		errutil.AssertErrorContext(t, err, "rule", account.RulePasswordLen)
	})

	t.Run("email conflict is checked before display name", func(t *testing.T) {
		svc, repo, _ := newService(t)
		repo.On("Exists", mock.Anything, account.FieldEmail, validEmail).Return(true, nil)

		_, err := svc.Register(ctx, validEmail, validPassword, validName)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, account.CodeEmailTaken)
		assert.Equal(t, "an account with this email already exists", account.UserMessage(err))
	})

	t.Run("display name conflict", func(t *testing.T) {
		svc, repo, _ := newService(t)
		repo.On("Exists", mock.Anything, account.FieldEmail, validEmail).Return(false, nil)
		repo.On("Exists", mock.Anything, account.FieldDisplayName, validName).Return(true, nil)

		_, err := svc.Register(ctx, validEmail, validPassword, validName)
		errutil.AssertErrorCode(t, err, account.CodeNameTaken)
		assert.Equal(t, "display name already taken", account.UserMessage(err))
	})

	t.Run("constraint violation at insert becomes in-use outcome", func(t *testing.T) {
		svc, repo, hasher := newService(t)
		repo.On("Exists", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
		hasher.On("Hash", validPassword).Return("h", nil)
		repo.On("Insert", mock.Anything, validEmail, validName, "h", mock.Anything).
			Return(int64(0), oops.With("field", "email").Wrap(account.ErrConstraintViolation))

		_, err := svc.Register(ctx, validEmail, validPassword, validName)
		errutil.AssertErrorCode(t, err, account.CodeInUse)
		assert.True(t, account.IsUserError(err))
	})

	t.Run("store failure is an infrastructure error", func(t *testing.T) {
		svc, repo, _ := newService(t)
		repo.On("Exists", mock.Anything, account.FieldEmail, validEmail).Return(false, errors.New("disk full"))

		_, err := svc.Register(ctx, validEmail, validPassword, validName)
		errutil.AssertErrorCode(t, err, account.CodeRegisterFailed)
		errutil.AssertErrorContext(t, err, "operation", "check email")
		assert.False(t, account.IsUserError(err))
		assert.Equal(t, account.GenericFailureMessage, account.UserMessage(err))
	})

	t.Run("hash failure", func(t *testing.T) {
		svc, repo, hasher := newService(t)
		repo.On("Exists", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
		hasher.On("Hash", validPassword).Return("", errors.New("no entropy"))

		_, err := svc.Register(ctx, validEmail, validPassword, validName)
		errutil.AssertErrorContext(t, err, "operation", "hash password")
	})
}

func TestService_Register_NeverLogsPassword(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	repo := mocks.NewMockRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc, err := account.NewServiceWithLogger(repo, hasher, account.DefaultPolicy(), slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, err)

	repo.On("Exists", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	hasher.On("Hash", validPassword).Return("h", nil)
	repo.On("Insert", mock.Anything, validEmail, validName, "h", mock.Anything).Return(int64(0), errors.New("boom"))

	_, err = svc.Register(ctx, validEmail, validPassword, validName)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "registration failed")
	assert.NotContains(t, buf.String(), validPassword)
}

func TestService_CheckRegistration(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t)

	repo.On("Exists", mock.Anything, account.FieldEmail, validEmail).Return(false, nil)
	repo.On("Exists", mock.Anything, account.FieldDisplayName, validName).Return(false, nil)

	// Hasher and Insert must not be called.
	require.NoError(t, svc.CheckRegistration(ctx, "Ash@gmail.com", validPassword, validName))
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	stored := &account.Account{
		ID:           3,
		Email:        validEmail,
		DisplayName:  validName,
		PasswordHash: "$argon2id$stored",
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	t.Run("by display name", func(t *testing.T) {
		svc, repo, hasher := newService(t)
		repo.On("FindByDisplayName", mock.Anything, validName).Return(stored, nil)
		hasher.On("Verify", validPassword, stored.PasswordHash).Return(true, nil)
		hasher.On("NeedsUpgrade", stored.PasswordHash).Return(false)

		id, err := svc.Login(ctx, account.FieldDisplayName, " Ash ", validPassword)
		require.NoError(t, err)
		assert.Equal(t, validName, id.DisplayName)
	})

	t.Run("by email is normalized", func(t *testing.T) {
		svc, repo, hasher := newService(t)
		repo.On("FindByEmail", mock.Anything, validEmail).Return(stored, nil)
		hasher.On("Verify", validPassword, stored.PasswordHash).Return(true, nil)
		hasher.On("NeedsUpgrade", stored.PasswordHash).Return(false)

		id, err := svc.Login(ctx, account.FieldEmail, "ASH@GMAIL.COM", validPassword)
		require.NoError(t, err)
		assert.Equal(t, int64(3), id.ID)
	})

	t.Run("unknown identifier and wrong password are distinguishable", func(t *testing.T) {
		svc, repo, hasher := newService(t)
		repo.On("FindByDisplayName", mock.Anything, "Gary").Return(nil, oops.Wrap(account.ErrNotFound))
		repo.On("FindByDisplayName", mock.Anything, validName).Return(stored, nil)
		hasher.On("Verify", "nope", stored.PasswordHash).Return(false, nil)

		_, errMissing := svc.Login(ctx, account.FieldDisplayName, "Gary", validPassword)
		_, errWrong := svc.Login(ctx, account.FieldDisplayName, validName, "nope")

		errutil.AssertErrorCode(t, errMissing, account.CodeNotFound)
		errutil.AssertErrorCode(t, errWrong, account.CodeWrongPassword)
		assert.Equal(t, "no such account", account.UserMessage(errMissing))
		assert.Equal(t, "incorrect password", account.UserMessage(errWrong))
	})

	t.Run("legacy hash is upgraded best effort", func(t *testing.T) {
		legacy := *stored
		legacy.PasswordHash = "abc123"
		svc, repo, hasher := newService(t)
		repo.On("FindByDisplayName", mock.Anything, validName).Return(&legacy, nil)
		hasher.On("Verify", validPassword, "abc123").Return(true, nil)
		hasher.On("NeedsUpgrade", "abc123").Return(true)
		hasher.On("Hash", validPassword).Return("$argon2id$new", nil)
		repo.On("UpdatePasswordHash", mock.Anything, int64(3), "$argon2id$new").Return(errors.New("read-only"))

		id, err := svc.Login(ctx, account.FieldDisplayName, validName, validPassword)
		require.NoError(t, err, "upgrade failure must not fail login")
		assert.Equal(t, validName, id.DisplayName)
	})

	t.Run("corrupt stored hash is an infrastructure error", func(t *testing.T) {
		svc, repo, hasher := newService(t)
		repo.On("FindByDisplayName", mock.Anything, validName).Return(stored, nil)
		hasher.On("Verify", validPassword, stored.PasswordHash).Return(false, errors.New("bad hash"))

		_, err := svc.Login(ctx, account.FieldDisplayName, validName, validPassword)
		errutil.AssertErrorCode(t, err, account.CodeLoginFailed)
		errutil.AssertErrorContext(t, err, "operation", "verify password")
	})

	t.Run("unknown field", func(t *testing.T) {
		svc, _, _ := newService(t)
		_, err := svc.Login(ctx, account.LookupField("phone"), "x", "y")
		errutil.AssertErrorCode(t, err, account.CodeLoginFailed)
	})
}

func TestService_StoreCodesDoNotLeak(t *testing.T) {
	ctx := context.Background()
	storeErr := func(code string) error {
		return oops.Code(code).With("table", "accounts").Errorf("database is locked")
	}

	t.Run("register", func(t *testing.T) {
		svc, repo, hasher := newService(t)
		repo.On("Exists", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
		hasher.On("Hash", validPassword).Return("h", nil)
		repo.On("Insert", mock.Anything, validEmail, validName, "h", mock.Anything).
			Return(int64(0), storeErr("STORE_INSERT_FAILED"))

		_, err := svc.Register(ctx, validEmail, validPassword, validName)
		errutil.AssertErrorCode(t, err, account.CodeRegisterFailed)
		errutil.AssertErrorContext(t, err, "cause_code", "STORE_INSERT_FAILED")
		assert.Contains(t, err.Error(), "database is locked")
	})

	t.Run("check", func(t *testing.T) {
		svc, repo, _ := newService(t)
		repo.On("Exists", mock.Anything, account.FieldEmail, validEmail).Return(false, storeErr("STORE_EXISTS_FAILED"))

		err := svc.CheckRegistration(ctx, validEmail, validPassword, validName)
		errutil.AssertErrorCode(t, err, account.CodeRegisterFailed)
		errutil.AssertErrorContext(t, err, "cause_code", "STORE_EXISTS_FAILED")
	})

	t.Run("login", func(t *testing.T) {
		svc, repo, _ := newService(t)
		repo.On("FindByEmail", mock.Anything, validEmail).Return(nil, storeErr("STORE_FIND_FAILED"))

		_, err := svc.Login(ctx, account.FieldEmail, validEmail, validPassword)
		errutil.AssertErrorCode(t, err, account.CodeLoginFailed)
		errutil.AssertErrorContext(t, err, "cause_code", "STORE_FIND_FAILED")
		assert.Equal(t, account.GenericFailureMessage, account.UserMessage(err))
	})

	t.Run("delete", func(t *testing.T) {
		svc, repo, _ := newService(t)
		repo.On("DeleteByEmail", mock.Anything, validEmail).Return(int64(0), storeErr("STORE_DELETE_FAILED"))

		_, err := svc.Delete(ctx, validEmail)
		errutil.AssertErrorCode(t, err, account.CodeAdminFailed)
		errutil.AssertErrorContext(t, err, "cause_code", "STORE_DELETE_FAILED")
	})
}

func TestService_Admin(t *testing.T) {
	ctx := context.Background()

	t.Run("list", func(t *testing.T) {
		svc, repo, _ := newService(t)
		repo.On("List", mock.Anything).Return([]*account.Account{{ID: 1}, {ID: 2}}, nil)

		accounts, err := svc.List(ctx)
		require.NoError(t, err)
		assert.Len(t, accounts, 2)
	})

	t.Run("delete normalizes email", func(t *testing.T) {
		svc, repo, _ := newService(t)
		repo.On("DeleteByEmail", mock.Anything, validEmail).Return(int64(1), nil)

		n, err := svc.Delete(ctx, " ASH@gmail.com")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("delete failure", func(t *testing.T) {
		svc, repo, _ := newService(t)
		repo.On("DeleteByEmail", mock.Anything, validEmail).Return(int64(0), errors.New("locked"))

		_, err := svc.Delete(ctx, validEmail)
		errutil.AssertErrorCode(t, err, account.CodeAdminFailed)
	})
}

func TestParseLookupField(t *testing.T) {
	tests := []struct {
		in     string
		want   account.LookupField
		wantOK bool
	}{
		{"email", account.FieldEmail, true},
		{" Email ", account.FieldEmail, true},
		{"display_name", account.FieldDisplayName, true},
		{"displayName", account.FieldDisplayName, true},
		{"name", account.FieldDisplayName, true},
		{"Profile", account.FieldDisplayName, true},
		{"phone", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := account.ParseLookupField(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
