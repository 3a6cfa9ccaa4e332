// Package contextkeys holds every context key the access core stores values
// under, so packages can share request-scoped values without importing each
// other.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey holds the *principal.Principal set by guard.Middleware.Authenticate.
	PrincipalKey Key = "principal"

	// RequestIDKey holds the request ID string set by
	// httputil.RequestIDMiddleware. Audit events and log lines copy it.
	RequestIDKey Key = "request_id"

	// UserIDKey holds the authenticated user ID string.
	UserIDKey Key = "user_id"

	// LoggerKey holds a request-scoped *observability.Logger.
	LoggerKey Key = "logger"
)

// WithPrincipal stores the resolved principal. The value is untyped to keep
// this package free of domain imports.
func WithPrincipal(ctx context.Context, p interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID returns the request ID, or "" outside a request
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// GetUserID returns the authenticated user ID, or ""
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}
