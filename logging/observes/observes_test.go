package observes

import (
	"context"
	"errors"
	"testing"
)

func TestNewSentryWithoutDSN(t *testing.T) {
	flush, err := NewSentry(&SentryOptions{})
	if err != nil {
		t.Fatalf("NewSentry: %v", err)
	}
	flush()
}

func TestNewTracerWithoutURL(t *testing.T) {
	shutdown, err := NewTracer(&TracerOption{Name: "batchd"})
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}

	if _, err := NewTracer(nil); err == nil {
		t.Error("expected error for nil options")
	}
}

func TestStartEndSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	if ctx == nil || span == nil {
		t.Fatal("StartSpan returned nil")
	}
	EndSpan(span, errors.New("boom"))
}
