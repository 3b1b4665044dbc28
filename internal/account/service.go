// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pokeu/pokeu/internal/observability"
)

var tracer = otel.Tracer("github.com/pokeu/pokeu/internal/account")

// Service registers and authenticates accounts.
type Service struct {
	repo   Repository
	hasher PasswordHasher
	policy Policy
	logger *slog.Logger
}

// NewService creates a Service with a no-op logger.
// Returns an error if a dependency is nil or the policy is invalid.
func NewService(repo Repository, hasher PasswordHasher, policy Policy) (*Service, error) {
	return NewServiceWithLogger(repo, hasher, policy, slog.New(slog.DiscardHandler))
}

// NewServiceWithLogger creates a Service with the provided logger.
func NewServiceWithLogger(repo Repository, hasher PasswordHasher, policy Policy, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Service{repo: repo, hasher: hasher, policy: policy, logger: logger}, nil
}

// CheckRegistration runs every registration pre-check without writing:
// input validation in the order email, display name, password, then
// uniqueness of email and display name.
func (s *Service) CheckRegistration(ctx context.Context, email, password, displayName string) error {
	ctx, span := tracer.Start(ctx, "account.CheckRegistration")
	defer span.End()

	err := s.precheck(ctx, NormalizeEmail(email), password, NormalizeDisplayName(displayName))
	endSpan(span, err)
	return err
}

func (s *Service) precheck(ctx context.Context, email, password, displayName string) error {
	if err := s.policy.ValidateEmail(email); err != nil {
		return err
	}
	if err := s.policy.ValidateDisplayName(displayName); err != nil {
		return err
	}
	if err := s.policy.ValidatePassword(password); err != nil {
		return err
	}

	taken, err := s.repo.Exists(ctx, FieldEmail, email)
	if err != nil {
		return failure(CodeRegisterFailed, err, "operation", "check email")
	}
	if taken {
		return oops.Code(CodeEmailTaken).With("email", email).Errorf("an account with this email already exists")
	}

	taken, err = s.repo.Exists(ctx, FieldDisplayName, displayName)
	if err != nil {
		return failure(CodeRegisterFailed, err, "operation", "check display name")
	}
	if taken {
		return oops.Code(CodeNameTaken).With("display_name", displayName).Errorf("display name already taken")
	}
	return nil
}

// Register validates and creates an account.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (*Identity, error) {
	ctx, span := tracer.Start(ctx, "account.Register")
	defer span.End()

	id, err := s.register(ctx, NormalizeEmail(email), password, NormalizeDisplayName(displayName))
	endSpan(span, err)
	observability.RecordAccountOperation("register", outcome(err))
	if err != nil && !IsUserError(err) {
		s.logger.ErrorContext(ctx, "registration failed", "error", err)
	}
	return id, err
}

func (s *Service) register(ctx context.Context, email, password, displayName string) (*Identity, error) {
	if err := s.precheck(ctx, email, password, displayName); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, failure(CodeRegisterFailed, err, "operation", "hash password")
	}

	id, err := s.repo.Insert(ctx, email, displayName, hash, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrConstraintViolation) {
			// Lost the race with a concurrent registration.
			return nil, oops.Code(CodeInUse).
				With("email", email).
				With("display_name", displayName).
				Errorf("email or display name already in use")
		}
		return nil, failure(CodeRegisterFailed, err, "operation", "insert account")
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", id, "display_name", displayName)
	return &Identity{ID: id, Email: email, DisplayName: displayName}, nil
}

// Login authenticates by the given field. An unknown identifier and a wrong
// password produce different error codes.
func (s *Service) Login(ctx context.Context, field LookupField, identifier, password string) (*Identity, error) {
	ctx, span := tracer.Start(ctx, "account.Login", trace.WithAttributes(attribute.String("field", string(field))))
	defer span.End()

	id, err := s.login(ctx, field, Normalize(field, identifier), password)
	endSpan(span, err)
	observability.RecordAccountOperation("login", outcome(err))
	if err != nil && !IsUserError(err) {
		s.logger.ErrorContext(ctx, "login failed", "error", err)
	}
	return id, err
}

func (s *Service) login(ctx context.Context, field LookupField, identifier, password string) (*Identity, error) {
	var (
		acct *Account
		err  error
	)
	switch field {
	case FieldEmail:
		acct, err = s.repo.FindByEmail(ctx, identifier)
	case FieldDisplayName:
		acct, err = s.repo.FindByDisplayName(ctx, identifier)
	default:
		return nil, oops.Code(CodeLoginFailed).With("field", string(field)).Errorf("unknown lookup field")
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).With("field", string(field)).Errorf("no such account")
		}
		return nil, failure(CodeLoginFailed, err, "operation", "find account")
	}

	ok, err := s.hasher.Verify(password, acct.PasswordHash)
	if err != nil {
		return nil, failure(CodeLoginFailed, err, "operation", "verify password", "account_id", acct.ID)
	}
	if !ok {
		return nil, oops.Code(CodeWrongPassword).With("account_id", acct.ID).Errorf("incorrect password")
	}

	if s.hasher.NeedsUpgrade(acct.PasswordHash) {
		s.upgradeHash(ctx, acct, password)
	}
	return acct.Identity(), nil
}

// upgradeHash re-encodes a legacy hash. Failures are logged, never returned.
func (s *Service) upgradeHash(ctx context.Context, acct *Account, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", "account_id", acct.ID, "error", err)
		return
	}
	if err := s.repo.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", "account_id", acct.ID, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "account_id", acct.ID)
}

// List returns every account.
func (s *Service) List(ctx context.Context) ([]*Account, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, failure(CodeAdminFailed, err, "operation", "list accounts")
	}
	return accounts, nil
}

// Delete removes the account with the given email and returns how many
// rows were removed.
func (s *Service) Delete(ctx context.Context, email string) (int64, error) {
	email = NormalizeEmail(email)
	n, err := s.repo.DeleteByEmail(ctx, email)
	if err != nil {
		return 0, failure(CodeAdminFailed, err, "operation", "delete account", "email", email)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "account deleted", "email", email)
	}
	return n, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsUserError(err):
		return "rejected"
	default:
		return "error"
	}
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	if code := ErrorCode(err); code != "" {
		span.SetAttributes(attribute.String("error.code", code))
	}
	if !IsUserError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
