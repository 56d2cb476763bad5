package audit

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"rentdesk.org/internal/auth"
	"rentdesk.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit record enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	attrs := []any{slog.String("type", "audit"), slog.String("event", event)}
	if rid := requestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		attrs = append(attrs, slog.String("user_id", id.UserID))
		if id.Email != "" {
			attrs = append(attrs, slog.String("user_email", id.Email))
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	group := make([]any, 0, len(keys))
	for _, k := range keys {
		group = append(group, slog.Any(k, fields[k]))
	}
	attrs = append(attrs, slog.Group("fields", group...))

	obs.Logger().InfoContext(ctx, "audit", attrs...)
	return nil
}

// Mutation journals a write sent to the API and the cache tags it invalidated.
func Mutation(ctx context.Context, endpoint string, err error, invalidated []string) {
	fields := map[string]any{"endpoint": endpoint}
	if len(invalidated) > 0 {
		fields["invalidated"] = invalidated
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["outcome"] = "failure"
	} else {
		fields["outcome"] = "success"
	}
	_ = LogEvent(ctx, "api.mutation", fields)
}
