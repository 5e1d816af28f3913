// Package rbac guards HTTP routes with permission expressions resolved
// against per-user permission sets.
package rbac

import "context"

type contextKey string

const userIDKey contextKey = "rbac.userID"

// ContextWithUserID stores the authenticated user id. Authentication
// middleware calls this after verifying the request identity.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}
