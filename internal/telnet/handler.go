// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package telnet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/pokeu/pokeu/internal/account"
	"github.com/pokeu/pokeu/internal/observability"
	"github.com/pokeu/pokeu/internal/verify"
)

const (
	usageRegister = "Usage: register <email> <display name> <password>"
	usageCode     = "Usage: code <digits>"
	usageConnect  = "Usage: %s <%s> <password>"

	shutdownWriteTimeout = time.Second
)

var helpLines = []string{
	"register <email> <display name> <password>  create an account",
	"code <digits>                               confirm the code from your email",
	"cancel                                      drop a pending registration",
	"connect <name> <password>                   log in",
	"connect-email <email> <password>            log in by email",
	"whoami                                      show who you are logged in as",
	"logout                                      log out",
	"quit                                        disconnect",
}

// ConnectionHandler handles a single telnet connection.
type ConnectionHandler struct {
	conn     net.Conn
	reader   *bufio.Reader
	auth     *AuthHandler
	cfg      handlerConfig
	session  *verify.Session
	connID   ulid.ULID
	identity *account.Identity
	limiter  *rate.Limiter
	quitting bool
}

// NewConnectionHandler creates a handler for conn.
func NewConnectionHandler(conn net.Conn, auth *AuthHandler, opts ...Option) *ConnectionHandler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newConnectionHandler(conn, auth, cfg)
}

func newConnectionHandler(conn net.Conn, auth *AuthHandler, cfg handlerConfig) *ConnectionHandler {
	h := &ConnectionHandler{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		auth:    auth,
		cfg:     cfg,
		session: verify.NewSession(),
		connID:  ulid.Make(),
	}
	if cfg.loginEvery > 0 {
		h.limiter = rate.NewLimiter(rate.Every(cfg.loginEvery), cfg.loginBurst)
	}
	return h
}

// Handle processes the connection until the client leaves or ctx is done.
// Any pending registration is abandoned on exit.
func (h *ConnectionHandler) Handle(ctx context.Context) {
	done := make(chan struct{})
	defer func() {
		close(done)
		h.auth.verifier.Abandon(h.session)
		if err := h.conn.Close(); err != nil {
			h.cfg.logger.Debug("error closing connection", "conn_id", h.connID.String(), "error", err)
		}
	}()

	h.send("Welcome to PokeU!")
	h.send("Type 'help' for a list of commands.")

	lineCh := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		for {
			line, err := h.reader.ReadString('\n')
			if err != nil {
				errCh <- err
				return
			}
			select {
			case lineCh <- strings.TrimSpace(line):
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = h.conn.SetWriteDeadline(time.Now().Add(shutdownWriteTimeout)) //nolint:errcheck // best effort notice
			h.send("Server is shutting down.")
			return

		case err := <-errCh:
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				h.cfg.logger.Debug("connection read error",
					"conn_id", h.connID.String(),
					"error", err,
				)
			}
			return

		case line := <-lineCh:
			h.processLine(ctx, line)
			if h.quitting {
				return
			}
		}
	}
}

// parseCommand splits input into a lowercased command and its trimmed
// argument string.
func parseCommand(input string) (cmd, arg string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ""
	}
	parts := strings.SplitN(input, " ", 2)
	cmd = strings.ToLower(parts[0])
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg
}

func (h *ConnectionHandler) processLine(ctx context.Context, line string) {
	cmd, arg := parseCommand(line)

	var ok bool
	switch cmd {
	case "":
		return
	case "register":
		ok = h.handleRegister(ctx, arg)
	case "code":
		ok = h.handleCode(ctx, arg)
	case "cancel":
		ok = h.handleCancel()
	case "connect":
		ok = h.handleConnect(ctx, h.cfg.loginField, arg)
	case "connect-email":
		ok = h.handleConnect(ctx, account.FieldEmail, arg)
	case "whoami":
		ok = h.handleWhoami()
	case "logout":
		ok = h.handleLogout()
	case "help":
		for _, l := range helpLines {
			h.send(l)
		}
		ok = true
	case "quit":
		h.send("Goodbye!")
		h.quitting = true
		ok = true
	default:
		h.send("Unknown command: " + cmd)
		return
	}
	h.recordCommand(cmd, ok)
}

func (h *ConnectionHandler) handleRegister(ctx context.Context, arg string) bool {
	if h.identity != nil {
		h.send("Already connected.")
		return false
	}
	fields := strings.Fields(arg)
	if len(fields) < 3 {
		h.send(usageRegister)
		return false
	}
	email := fields[0]
	password := fields[len(fields)-1]
	displayName := strings.Join(fields[1:len(fields)-1], " ")

	res := h.auth.HandleRegister(ctx, h.session, email, displayName, password)
	h.send(res.Message)
	return res.Success
}

func (h *ConnectionHandler) handleCode(ctx context.Context, arg string) bool {
	if arg == "" {
		h.send(usageCode)
		return false
	}
	res := h.auth.HandleCode(ctx, h.session, arg)
	h.send(res.Message)
	if res.Success {
		h.identity = res.Identity
	}
	return res.Success
}

func (h *ConnectionHandler) handleCancel() bool {
	res := h.auth.HandleCancel(h.session)
	h.send(res.Message)
	return res.Success
}

func (h *ConnectionHandler) handleConnect(ctx context.Context, field account.LookupField, arg string) bool {
	if h.identity != nil {
		h.send("Already connected.")
		return false
	}
	fields := strings.Fields(arg)
	if len(fields) < 2 {
		h.send(fmt.Sprintf(usageConnect, cmdFor(field), labelFor(field)))
		return false
	}
	if h.limiter != nil && h.limiter.Tokens() < 1 {
		h.send("Too many failed attempts. Please wait before trying again.")
		return false
	}
	password := fields[len(fields)-1]
	identifier := strings.Join(fields[:len(fields)-1], " ")

	res := h.auth.HandleConnect(ctx, h.session, field, identifier, password)
	h.send(res.Message)
	if !res.Success {
		if h.limiter != nil {
			h.limiter.Allow()
		}
		return false
	}
	h.identity = res.Identity
	h.cfg.logger.InfoContext(ctx, "player connected",
		"conn_id", h.connID.String(),
		"account_id", res.Identity.ID,
	)
	return true
}

func (h *ConnectionHandler) handleWhoami() bool {
	if h.identity == nil {
		h.send("You are not connected.")
		return false
	}
	h.send(fmt.Sprintf("You are %s <%s>.", h.identity.DisplayName, h.identity.Email))
	return true
}

func (h *ConnectionHandler) handleLogout() bool {
	if h.identity == nil {
		h.send("You are not connected.")
		return false
	}
	h.identity = nil
	h.send("Logged out.")
	return true
}

func cmdFor(field account.LookupField) string {
	if field == account.FieldEmail {
		return "connect-email"
	}
	return "connect"
}

func labelFor(field account.LookupField) string {
	if field == account.FieldEmail {
		return "email"
	}
	return "display name"
}

func (h *ConnectionHandler) recordCommand(cmd string, ok bool) {
	if h.cfg.metrics == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	h.cfg.metrics.CommandsTotal.WithLabelValues(cmd, status).Inc()
}

func (h *ConnectionHandler) send(msg string) {
	if _, err := fmt.Fprintln(h.conn, msg); err != nil {
		h.cfg.logger.Debug("failed to send message to client",
			"conn_id", h.connID.String(),
			"error", err,
		)
	}
}

type handlerConfig struct {
	loginField account.LookupField
	loginEvery time.Duration
	loginBurst int
	metrics    *observability.Metrics
	logger     *slog.Logger
}

func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		loginField: account.FieldDisplayName,
		loginEvery: defaultLoginEvery,
		loginBurst: defaultLoginBurst,
		logger:     slog.Default(),
	}
}
