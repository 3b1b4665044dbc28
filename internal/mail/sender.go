// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package mail delivers verification codes by email.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Sender delivers a verification code to an address.
type Sender interface {
	Send(ctx context.Context, to, code string) error
}

// Subject is the subject line of verification mails.
const Subject = "Your PokeU verification code"

// SMTPSender sends codes through an SMTP relay. Port 465 uses implicit TLS;
// other ports upgrade with STARTTLS when the server offers it.
type SMTPSender struct {
	cfg     Config
	logger  *slog.Logger
	backoff func() retry.Backoff
	deliver func(ctx context.Context, cfg Config, to, msg string) error
}

// SMTPOption configures an SMTPSender.
type SMTPOption func(*SMTPSender)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SMTPOption {
	return func(s *SMTPSender) { s.logger = l }
}

// WithRetry bounds delivery retries for transient failures.
func WithRetry(maxRetries uint64, initial time.Duration) SMTPOption {
	return func(s *SMTPSender) {
		s.backoff = func() retry.Backoff {
			return retry.WithMaxRetries(maxRetries, retry.NewExponential(initial))
		}
	}
}

// NewSMTPSender validates cfg and returns a sender.
func NewSMTPSender(cfg Config, opts ...SMTPOption) (*SMTPSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &SMTPSender{cfg: cfg, logger: slog.Default(), deliver: deliver}
	WithRetry(2, 500*time.Millisecond)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send mails code to the address, retrying transient failures.
func (s *SMTPSender) Send(ctx context.Context, to, code string) error {
	msg := buildMessage(s.cfg, to, code)
	attempt := 0
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		attempt++
		err := s.deliver(ctx, s.cfg, to, msg)
		if err == nil {
			return nil
		}
		if transient(err) {
			s.logger.WarnContext(ctx, "smtp delivery failed, retrying", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("host", s.cfg.Host).With("attempts", attempt).Wrap(err)
	}
	return nil
}

// transient reports whether a retry can help: network errors and 4xx replies.
func transient(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 400 && tpErr.Code < 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func buildMessage(cfg Config, to, code string) string {
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + Subject + "\r\n")
	sb.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString("Your verification code is " + code + ".\r\n")
	sb.WriteString("Enter it in the game to finish creating your account.\r\n")
	return sb.String()
}

func deliver(ctx context.Context, cfg Config, to, msg string) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	var (
		conn net.Conn
		err  error
	)
	if cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline) //nolint:errcheck // best effort
	}

	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close() //nolint:errcheck // client error takes precedence
		return err
	}
	defer func() { _ = c.Close() }() //nolint:errcheck // Quit reports the meaningful error

	if cfg.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
				return err
			}
		}
	}
	if err := c.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
		return err
	}
	if err := c.Mail(cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}
