package observes

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"
)

const sentryFlushTimeout = 2 * time.Second

// SentryOptions configures the global Sentry client
type SentryOptions struct {
	Dsn         string
	Name        string
	Release     string
	Environment string
	SampleRate  float64
}

// NewSentry initializes the global Sentry hub and returns a flush function.
// Without a DSN it does nothing.
func NewSentry(opt *SentryOptions) (func(), error) {
	if opt == nil || opt.Dsn == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opt.Dsn,
		AttachStacktrace: true,
		SampleRate:       opt.SampleRate,
		TracesSampleRate: opt.SampleRate,
		ServerName:       opt.Name,
		Release:          opt.Release,
		Environment:      opt.Environment,
		BeforeSend:       dropCanceled,
	})
	if err != nil {
		return nil, err
	}
	return func() { sentry.Flush(sentryFlushTimeout) }, nil
}

// CaptureError reports err unless it is nil or a cancellation.
func CaptureError(ctx context.Context, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}

// dropCanceled filters events raised by client disconnects and shutdown.
func dropCanceled(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint != nil && errors.Is(hint.OriginalException, context.Canceled) {
		return nil
	}
	return event
}
