// Package ctxutil carries request-scoped values (user id, e-mail, roles,
// trace id) through context.Context, and builds detached contexts for work
// that must outlive a request.
package ctxutil
