package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

// TraceIDKey names the trace id in log fields and gin keys.
const TraceIDKey = "trace_id"

type key int

const (
	userIDKey key = iota
	userEmailKey
	userRolesKey
	traceIDKey
)

func value[T any](ctx context.Context, k key) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(k).(T)
	return v, ok
}

// SetUserID records the authenticated user.
func SetUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, userIDKey, uid)
}

// GetUserID returns the authenticated user or "".
func GetUserID(ctx context.Context) string {
	uid, _ := value[string](ctx, userIDKey)
	return uid
}

// SetUserEmail records the user's e-mail address, used for completion mail.
func SetUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userEmailKey, email)
}

// GetUserEmail returns the user's e-mail address or "".
func GetUserEmail(ctx context.Context) string {
	email, _ := value[string](ctx, userEmailKey)
	return email
}

// SetUserRoles records the roles carried by the access token.
func SetUserRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, userRolesKey, roles)
}

// GetUserRoles returns the token roles, never nil.
func GetUserRoles(ctx context.Context) []string {
	if roles, ok := value[[]string](ctx, userRolesKey); ok && roles != nil {
		return roles
	}
	return []string{}
}

// GetTraceID returns the request trace id or "".
func GetTraceID(ctx context.Context) string {
	id, _ := value[string](ctx, traceIDKey)
	return id
}

// SetTraceID records the request trace id.
func SetTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// EnsureTraceID returns ctx unchanged when it already carries a trace id,
// otherwise it attaches a fresh one.
func EnsureTraceID(ctx context.Context) (context.Context, string) {
	if id := GetTraceID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return SetTraceID(ctx, id), id
}
