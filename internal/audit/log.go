// Package audit emits structured audit events for security-relevant
// actions: logins, role changes, permission grants.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"keygate.io/internal/auth"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

var logger = slog.Default()

// SetLogger routes audit events to the given logger. Call once at startup.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// LogEvent writes an audit entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}
	attrs := []any{
		slog.String("type", "audit"),
		slog.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if actor, ok := auth.UserFromContext(ctx); ok {
		attrs = append(attrs, slog.String("actor_id", actor.ID))
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	logger.InfoContext(ctx, event, attrs...)
	return nil
}
