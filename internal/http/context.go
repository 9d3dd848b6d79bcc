package http

import (
	"context"
	"log/slog"

	"github.com/example/lesson-scheduler/internal/logging"
)

type contextKey string

const adminIdentityContextKey contextKey = "admin_identity"

// ContextWithAdminIdentity returns a derived context carrying the calling admin.
func ContextWithAdminIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, adminIdentityContextKey, identity)
}

// AdminIdentityFromContext extracts the admin identity set by RequireAdminIdentity.
func AdminIdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(adminIdentityContextKey).(string)
	return identity, ok && identity != ""
}

// ContextWithLogger attaches a request scoped logger. Services read it back
// through the logging package.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request scoped logger, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
