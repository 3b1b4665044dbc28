// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package telnet

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/verify"
	"github.com/pokeu/pokeu/pkg/errutil"
)

// AccountService is the login operation needed by telnet handlers.
type AccountService interface {
	Login(ctx context.Context, field account.LookupField, identifier, password string) (*account.Identity, error)
}

// Verifier is the registration handshake needed by telnet handlers.
type Verifier interface {
	RequestCode(ctx context.Context, sess *verify.Session, email, password, displayName string) error
	SubmitCode(ctx context.Context, sess *verify.Session, code string) (*account.Identity, error)
	Abandon(sess *verify.Session)
}

// AuthHandler turns account outcomes into player-facing replies.
type AuthHandler struct {
	accounts AccountService
	verifier Verifier
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler with a no-op logger.
func NewAuthHandler(accounts AccountService, verifier Verifier) (*AuthHandler, error) {
	return NewAuthHandlerWithLogger(accounts, verifier, slog.New(slog.DiscardHandler))
}

// NewAuthHandlerWithLogger creates an AuthHandler with the provided logger.
func NewAuthHandlerWithLogger(accounts AccountService, verifier Verifier, logger *slog.Logger) (*AuthHandler, error) {
	if accounts == nil {
		return nil, oops.Errorf("account service is required")
	}
	if verifier == nil {
		return nil, oops.Errorf("verifier is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &AuthHandler{accounts: accounts, verifier: verifier, logger: logger}, nil
}

// Result is the outcome of an auth command.
type Result struct {
	Success  bool
	Message  string
	Identity *account.Identity
}

// HandleRegister starts a registration by mailing a code.
func (h *AuthHandler) HandleRegister(ctx context.Context, sess *verify.Session, email, displayName, password string) Result {
	if err := h.verifier.RequestCode(ctx, sess, email, password, displayName); err != nil {
		return h.failure(ctx, "register", sess, err)
	}
	return Result{
		Success: true,
		Message: "A verification code was sent to " + account.NormalizeEmail(email) + ". Enter it with: code <digits>",
	}
}

// HandleCode confirms a pending registration.
func (h *AuthHandler) HandleCode(ctx context.Context, sess *verify.Session, code string) Result {
	id, err := h.verifier.SubmitCode(ctx, sess, code)
	if err != nil {
		return h.failure(ctx, "code", sess, err)
	}
	return Result{
		Success:  true,
		Message:  "Welcome, " + id.DisplayName + "! Your account is ready.",
		Identity: id,
	}
}

// HandleCancel drops a pending registration.
func (h *AuthHandler) HandleCancel(sess *verify.Session) Result {
	_, pending := sess.PendingEmail()
	h.verifier.Abandon(sess)
	if !pending {
		return Result{Success: true, Message: "Nothing to cancel."}
	}
	return Result{Success: true, Message: "Registration cancelled."}
}

// HandleConnect logs in by the given field.
func (h *AuthHandler) HandleConnect(ctx context.Context, sess *verify.Session, field account.LookupField, identifier, password string) Result {
	id, err := h.accounts.Login(ctx, field, identifier, password)
	if err != nil {
		return h.failure(ctx, "connect", sess, err)
	}
	return Result{Success: true, Message: "Welcome back, " + id.DisplayName + "!", Identity: id}
}

func (h *AuthHandler) failure(ctx context.Context, op string, sess *verify.Session, err error) Result {
	msg := verify.UserMessage(err)
	if msg == account.GenericFailureMessage {
		errutil.LogErrorContext(ctx, h.logger.With("operation", op, "session_id", sess.ID.String()), "telnet command failed", err)
	} else {
		h.logger.DebugContext(ctx, "telnet command rejected",
			"operation", op,
			"session_id", sess.ID.String(),
			"code", account.ErrorCode(err),
		)
	}
	return Result{Success: false, Message: msg}
}
