package ctxutil

import (
	"context"
	"time"
)

// DefaultAsyncTimeout is the default timeout for async operations
const DefaultAsyncTimeout = 5 * time.Second

// WithAsyncContext creates a context for work that must outlive the request
// (refunds, notifications). Values such as the trace id are preserved, the
// parent's cancellation is not.
func WithAsyncContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = DefaultAsyncTimeout
	}
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
