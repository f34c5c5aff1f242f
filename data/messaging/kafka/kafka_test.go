package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/studio233/batchd/data/config"
	"github.com/studio233/batchd/data/messaging"
)

// fakeReader hands out queued messages once, then reports io.EOF
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if len(r.queue) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.queue[0]
	r.queue = r.queue[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func newTestBroker() *Kafka {
	return &Kafka{
		messaging:      &config.Messaging{RetryBackoffMax: 4 * time.Millisecond},
		handlerBackoff: time.Millisecond,
	}
}

func TestConsumeRetriesSameMessage(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Topic: "events", Key: []byte("job_1"), Value: []byte("a"), Offset: 10},
		{Topic: "events", Key: []byte("job_1"), Value: []byte("b"), Offset: 11},
	}}
	var seen []string
	failures := 2
	h := func(_ context.Context, m messaging.Message) error {
		seen = append(seen, string(m.Body))
		if string(m.Body) == "a" && failures > 0 {
			failures--
			return errors.New("store unavailable")
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := newTestBroker().consume(ctx, reader, "events", h); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if fmt.Sprint(seen) != "[a a a b]" {
		t.Errorf("handled %v, want [a a a b]", seen)
	}
	if fmt.Sprint(reader.committed) != "[10 11]" {
		t.Errorf("committed %v, want [10 11]", reader.committed)
	}
}

func TestConsumeStopsRetryingOnCancel(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Topic: "events", Value: []byte("a"), Offset: 3},
		{Topic: "events", Value: []byte("b"), Offset: 4},
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	calls := 0
	h := func(_ context.Context, m messaging.Message) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("store unavailable")
	}
	err := newTestBroker().consume(ctx, reader, "events", h)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("consume = %v, want context.Canceled", err)
	}
	if len(reader.committed) != 0 {
		t.Errorf("committed %v after failed handler", reader.committed)
	}
	if len(reader.queue) != 1 {
		t.Errorf("later message fetched before the failing one was handled")
	}
}
