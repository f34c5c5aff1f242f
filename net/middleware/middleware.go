// Package middleware provides the gin middleware chain of the HTTP API:
// trace ids, access logging with metrics, panic recovery, bearer auth and
// per-user rate limiting.
package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/studio233/batchd/ctxutil"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/metrics"
	"github.com/studio233/batchd/net/resp"
)

// TraceHeader carries the request trace id in and out.
const TraceHeader = "X-Trace-ID"

// Trace attaches a trace id to the request context, reusing the caller's
// header when present.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(TraceHeader); id != "" {
			ctx = ctxutil.SetTraceID(ctx, id)
		}
		ctx, traceID := ctxutil.EnsureTraceID(ctx)
		c.Set(ctxutil.TraceIDKey, traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, traceID)
		c.Next()
	}
}

// Logger writes one access log line per request and records HTTP metrics
// under the matched route.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		done := metrics.HTTPStart()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		done(c.Request.Method, route, status)

		kv := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		if uid := c.GetString(userIDKey); uid != "" {
			kv = append(kv, "user_id", uid)
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(c.Request.Context(), "HTTP request", kv...)
		case status >= http.StatusBadRequest:
			logger.Warn(c.Request.Context(), "HTTP request", kv...)
		default:
			logger.Info(c.Request.Context(), "HTTP request", kv...)
		}
	}
}

// Recovery turns panics into a 500 envelope and reports them to Sentry.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}
			hub := sentry.CurrentHub().Clone()
			hub.Scope().SetRequest(c.Request)
			hub.Scope().SetTag("route", c.FullPath())
			hub.Scope().SetTag("trace_id", ctxutil.GetTraceID(c.Request.Context()))
			hub.RecoverWithContext(c.Request.Context(), r)

			logger.Error(c.Request.Context(), "panic recovered", "panic", fmt.Sprint(r), "path", c.Request.URL.Path)
			resp.Fail(c.Writer, resp.InternalServer(""))
			c.Abort()
		}()
		c.Next()
	}
}
