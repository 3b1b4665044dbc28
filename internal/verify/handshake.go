// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package verify

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/mail"
	"github.com/pokeu/pokeu/internal/observability"
	"github.com/pokeu/pokeu/pkg/errutil"
)

var tracer = otel.Tracer("github.com/pokeu/pokeu/internal/verify")

// Error codes returned by Handshake.
const (
	CodeDeliveryFailed  = "VERIFY_DELIVERY_FAILED"
	CodeNoPending       = "VERIFY_NO_PENDING"
	CodeExpired         = "VERIFY_CODE_EXPIRED"
	CodeMismatch        = "VERIFY_CODE_MISMATCH"
	CodeTooManyAttempts = "VERIFY_TOO_MANY_ATTEMPTS"
	CodeResendTooSoon   = "VERIFY_RESEND_TOO_SOON"
)

// Registrar is the part of account.Service the handshake drives.
type Registrar interface {
	CheckRegistration(ctx context.Context, email, password, displayName string) error
	Register(ctx context.Context, email, password, displayName string) (*account.Identity, error)
}

// Handshake issues and confirms verification codes.
type Handshake struct {
	accounts       Registrar
	sender         mail.Sender
	logger         *slog.Logger
	codeTTL        time.Duration
	maxAttempts    int
	resendInterval time.Duration
	now            func() time.Time
	newCode        func() (string, error)
}

// Option configures a Handshake.
type Option func(*Handshake)

// WithCodeTTL expires codes after d. Zero disables expiry.
func WithCodeTTL(d time.Duration) Option {
	return func(h *Handshake) { h.codeTTL = d }
}

// WithMaxAttempts discards the pending registration after n wrong codes.
// Zero allows unlimited attempts.
func WithMaxAttempts(n int) Option {
	return func(h *Handshake) { h.maxAttempts = n }
}

// WithResendInterval allows one code request per session every d.
// Zero leaves requests unthrottled.
func WithResendInterval(d time.Duration) Option {
	return func(h *Handshake) { h.resendInterval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handshake) { h.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handshake) { h.now = now }
}

// WithCodeGenerator replaces GenerateCode.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(h *Handshake) { h.newCode = fn }
}

// New creates a Handshake.
func New(accounts Registrar, sender mail.Sender, opts ...Option) (*Handshake, error) {
	if accounts == nil {
		return nil, oops.Errorf("registrar is required")
	}
	if sender == nil {
		return nil, oops.Errorf("mail sender is required")
	}
	h := &Handshake{
		accounts: accounts,
		sender:   sender,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
		newCode:  GenerateCode,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.codeTTL < 0 || h.maxAttempts < 0 || h.resendInterval < 0 {
		return nil, oops.Code("VERIFY_CONFIG_INVALID").Errorf("handshake bounds must not be negative")
	}
	return h, nil
}

// RequestCode validates a registration, mails a code and parks the
// registration on sess. A request that passes validation and the resend
// limit drops any earlier pending registration, even when delivery then
// fails. A validation or throttle failure leaves the session as it was.
func (h *Handshake) RequestCode(ctx context.Context, sess *Session, email, password, displayName string) error {
	ctx, span := tracer.Start(ctx, "verify.RequestCode", trace.WithAttributes(
		attribute.String("session_id", sess.ID.String()),
	))
	defer span.End()

	if err := h.accounts.CheckRegistration(ctx, email, password, displayName); err != nil {
		endSpan(span, err)
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if h.resendInterval > 0 {
		if sess.resend == nil {
			sess.resend = rate.NewLimiter(rate.Every(h.resendInterval), 1)
		}
		if !sess.resend.AllowN(h.now(), 1) {
			observability.RecordVerificationEvent("throttled")
			err := oops.Code(CodeResendTooSoon).Errorf("please wait before requesting another code")
			endSpan(span, err)
			return err
		}
	}

	sess.discard(StateIdle)

	code, err := h.newCode()
	if err != nil {
		endSpan(span, err)
		return err
	}

	to := account.NormalizeEmail(email)
	if err := h.sender.Send(ctx, to, code); err != nil {
		errutil.LogError(h.logger, "verification code delivery failed", err)
		observability.RecordVerificationEvent("delivery_failed")
		// The cause stays in the log; the user only learns that sending failed.
		userErr := oops.Code(CodeDeliveryFailed).With("session_id", sess.ID.String()).Errorf("could not send code")
		endSpan(span, userErr)
		return userErr
	}

	sess.pending = &pending{
		email:       to,
		password:    password,
		displayName: account.NormalizeDisplayName(displayName),
		code:        code,
		issuedAt:    h.now(),
	}
	sess.state = StateCodeIssued

	observability.RecordVerificationEvent("issued")
	h.logger.InfoContext(ctx, "verification code issued", "session_id", sess.ID.String())
	return nil
}

// SubmitCode checks code against the pending registration and, on a match,
// registers the account. The result of registration is returned unchanged.
func (h *Handshake) SubmitCode(ctx context.Context, sess *Session, code string) (*account.Identity, error) {
	ctx, span := tracer.Start(ctx, "verify.SubmitCode", trace.WithAttributes(
		attribute.String("session_id", sess.ID.String()),
	))
	defer span.End()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	p := sess.pending
	if sess.state != StateCodeIssued || p == nil {
		err := oops.Code(CodeNoPending).Errorf("no verification code has been requested")
		endSpan(span, err)
		return nil, err
	}

	if h.codeTTL > 0 && h.now().Sub(p.issuedAt) > h.codeTTL {
		sess.discard(StateIdle)
		observability.RecordVerificationEvent("expired")
		err := oops.Code(CodeExpired).Errorf("code expired, please request a new one")
		endSpan(span, err)
		return nil, err
	}

	if !codesMatch(p.code, code) {
		p.attempts++
		if h.maxAttempts > 0 && p.attempts >= h.maxAttempts {
			sess.discard(StateIdle)
			observability.RecordVerificationEvent("locked_out")
			err := oops.Code(CodeTooManyAttempts).Errorf("too many incorrect codes, please register again")
			endSpan(span, err)
			return nil, err
		}
		observability.RecordVerificationEvent("mismatch")
		err := oops.Code(CodeMismatch).Errorf("incorrect code")
		endSpan(span, err)
		return nil, err
	}

	email, password, displayName := p.email, p.password, p.displayName
	sess.discard(StateConsumed)

	id, err := h.accounts.Register(ctx, email, password, displayName)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	observability.RecordVerificationEvent("confirmed")
	span.SetAttributes(attribute.Int64("account_id", id.ID))
	return id, nil
}

// Abandon drops any pending registration on sess.
func (h *Handshake) Abandon(sess *Session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.pending != nil {
		observability.RecordVerificationEvent("abandoned")
	}
	sess.discard(StateAbandoned)
}

func endSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := any(oopsErr.Code()).(string); ok && code != "" {
			span.SetAttributes(attribute.String("error.code", code))
		}
	}
}
