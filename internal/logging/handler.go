// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

// Package logging provides structured logging with OpenTelemetry trace context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// redactedKeys are attribute keys whose values never reach the log output.
var redactedKeys = map[string]bool{
	"password": true,
	"code":     true,
	"secret":   true,
}

const redacted = "[REDACTED]"

// traceHandler adds service identity and trace context to every record.
type traceHandler struct {
	handler slog.Handler
	service string
	version string
}

// Handle adds service, version, and trace/span IDs to the record.
func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

// Enabled reports whether level is enabled.
func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a handler with the given attributes.
func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{handler: h.handler.WithAttrs(attrs), service: h.service, version: h.version}
}

// WithGroup returns a handler with the given group.
func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{handler: h.handler.WithGroup(name), service: h.service, version: h.version}
}

// redact replaces sensitive attribute values. A top-level "code" holding an
// error code is kept since errutil.LogError uses that key.
func redact(groups []string, a slog.Attr) slog.Attr {
	if !redactedKeys[strings.ToLower(a.Key)] {
		return a
	}
	if a.Key == "code" && len(groups) == 0 && isErrorCode(a.Value.String()) {
		return a
	}
	return slog.String(a.Key, redacted)
}

// isErrorCode reports whether s looks like an oops code (UPPER_SNAKE with
// at least one letter). Verification codes are all digits and never match.
func isErrorCode(s string) bool {
	letters := 0
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			letters++
		case r == '_' || (r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return letters > 0
}

// ParseLevel converts debug, info, warn or error into a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, oops.Code("LOG_LEVEL_INVALID").With("level", level).Wrap(err)
	}
	return l, nil
}

// ValidateFormat checks that format is "json" or "text".
func ValidateFormat(format string) error {
	if format != "json" && format != "text" {
		return oops.Code("LOG_FORMAT_INVALID").Errorf("log format must be 'json' or 'text', got %q", format)
	}
	return nil
}

// Setup creates a configured slog.Logger.
// format is "json" or "text" (an empty format means json). A nil w writes
// to os.Stderr.
func Setup(service, version, format string, level slog.Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redact}

	var base slog.Handler
	if format == "text" {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}

	return slog.New(&traceHandler{handler: base, service: service, version: version})
}
