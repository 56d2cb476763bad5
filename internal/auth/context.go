package auth

import (
	"context"
	"strings"
)

type userContextKey struct{}

// Identity is who an operation runs on behalf of.
type Identity struct {
	UserID string
	Email  string
}

// ContextWithUser attaches the acting user to the context.
func ContextWithUser(ctx context.Context, userID, email string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userContextKey{}, Identity{UserID: userID, Email: strings.TrimSpace(email)})
}

// IdentityFromContext returns the acting user if one was attached.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(userContextKey{}).(Identity)
	if !ok || v.UserID == "" {
		return Identity{}, false
	}
	return v, true
}

// UserIDFromContext extracts the acting user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.UserID, ok
}
