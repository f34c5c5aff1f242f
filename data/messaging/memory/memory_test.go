package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studio233/batchd/data/messaging"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := b.Publish(ctx, "jobs", "j1", []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := make(chan messaging.Message, 1)
	go func() {
		_ = b.Subscribe(ctx, "jobs", "g", func(_ context.Context, m messaging.Message) error {
			got <- m
			return nil
		})
	}()

	select {
	case m := <-got:
		if m.Key != "j1" || string(m.Body) != "hello" || m.Topic != "jobs" {
			t.Errorf("unexpected message %+v", m)
		}
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestRedeliveryOnHandlerError(t *testing.T) {
	b := New()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		_ = b.Subscribe(ctx, "events", "g", func(context.Context, messaging.Message) error {
			if calls.Add(1) == 1 {
				return errors.New("transient")
			}
			close(done)
			return nil
		})
	}()

	if err := b.Publish(ctx, "events", "e1", []byte("{}")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("message was not redelivered")
	}
	if calls.Load() != 2 {
		t.Errorf("handler calls = %d, want 2", calls.Load())
	}
}

func TestPublishAfterClose(t *testing.T) {
	b := New()
	_ = b.Close()
	if err := b.Publish(context.Background(), "jobs", "k", nil); !errors.Is(err, messaging.ErrClosed) {
		t.Errorf("Publish after close = %v, want ErrClosed", err)
	}
}
