package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/data/config"
	"github.com/studio233/batchd/data/messaging"
	"github.com/studio233/batchd/data/messaging/memory"
	"github.com/studio233/batchd/security/signature"
)

var msgCfg = &config.Messaging{DispatchTopic: "jobs", EventTopic: "events", PublishTimeout: time.Second}

type failingBroker struct{ messaging.Broker }

func (failingBroker) Publish(context.Context, string, string, []byte) error {
	return errors.New("unreachable")
}

func TestDispatchRoundTrip(t *testing.T) {
	broker := memory.New()
	defer broker.Close()
	d := New(broker, msgCfg)

	msg := &structs.DispatchMessage{JobID: "job_1", BatchID: "bat_1", Operation: "upscale", SourceURL: "https://img.test/a.png", MaxAttempts: 3}
	if err := d.Dispatch(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got := make(chan *structs.DispatchMessage, 1)
	go func() {
		_ = ConsumeJobs(ctx, broker, msgCfg, "workers", func(_ context.Context, m *structs.DispatchMessage) error {
			got <- m
			return nil
		})
	}()
	select {
	case m := <-got:
		if m.JobID != "job_1" || m.MaxAttempts != 3 {
			t.Errorf("unexpected message: %+v", m)
		}
	case <-ctx.Done():
		t.Fatal("dispatch message not consumed")
	}
}

func TestDispatchError(t *testing.T) {
	d := New(failingBroker{}, msgCfg)
	err := d.Dispatch(context.Background(), &structs.DispatchMessage{JobID: "job_1"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestEventConsumer(t *testing.T) {
	broker := memory.New()
	defer broker.Close()
	pub := NewBrokerEvents(broker, msgCfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	permanentErr := errors.New("bad event")
	var (
		mu       sync.Mutex
		seen     []string
		attempts int
	)
	done := make(chan struct{})
	handle := func(_ context.Context, ev *structs.Event) error {
		mu.Lock()
		defer mu.Unlock()
		switch ev.ID {
		case "flaky":
			attempts++
			if attempts == 1 {
				return errors.New("transient")
			}
		case "poison":
			return permanentErr
		}
		seen = append(seen, ev.ID)
		if len(seen) == 2 {
			close(done)
		}
		return nil
	}
	c := NewEventConsumer(broker, msgCfg, "batchd", handle, func(err error) bool { return errors.Is(err, permanentErr) })
	go func() { _ = c.Run(ctx) }()

	_ = broker.Publish(ctx, "events", "x", []byte("not json"))
	for _, id := range []string{"poison", "flaky", "ok"} {
		if err := pub.PublishEvent(ctx, &structs.Event{ID: id, JobID: "job_1", Type: structs.EventStarted}); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("flaky event attempts = %d, want 2", attempts)
	}
}

func TestWebhookEvents(t *testing.T) {
	const secret = "whsec"
	var received structs.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := signature.Verify(secret, r.Header.Get(signature.Header), body, time.Minute, time.Now()); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	pub := NewWebhookEvents(srv.URL, secret, time.Second)
	ev := &structs.Event{ID: "ev1", JobID: "job_1", Type: structs.EventCompleted, Attempt: 1, ResultURL: "https://cdn.test/r.png"}
	if err := pub.PublishEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if received.ID != "ev1" || received.ResultURL != ev.ResultURL {
		t.Errorf("unexpected event: %+v", received)
	}

	bad := NewWebhookEvents(srv.URL, "wrong", time.Second)
	if err := bad.PublishEvent(context.Background(), ev); err == nil {
		t.Error("expected rejection with wrong secret")
	}
}
