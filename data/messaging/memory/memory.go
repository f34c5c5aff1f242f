// Package memory is an in-process broker for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/studio233/batchd/data/messaging"
	"github.com/studio233/batchd/logging/logger"
)

const (
	defaultBuffer   = 1024
	redeliveryDelay = 50 * time.Millisecond
)

// Broker delivers each message to one subscriber of the topic. Messages
// published before anyone subscribes are buffered.
type Broker struct {
	mu     sync.Mutex
	queues map[string]chan messaging.Message
	closed bool
	done   chan struct{}
}

var _ messaging.Broker = (*Broker)(nil)

// New creates a memory broker.
func New() *Broker {
	return &Broker{
		queues: make(map[string]chan messaging.Message),
		done:   make(chan struct{}),
	}
}

func (b *Broker) queue(topic string) (chan messaging.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, messaging.ErrClosed
	}
	q, ok := b.queues[topic]
	if !ok {
		q = make(chan messaging.Message, defaultBuffer)
		b.queues[topic] = q
	}
	return q, nil
}

// Publish enqueues the message, blocking while the topic buffer is full.
func (b *Broker) Publish(ctx context.Context, topic, key string, body []byte) error {
	q, err := b.queue(topic)
	if err != nil {
		return err
	}
	msg := messaging.Message{Topic: topic, Key: key, Body: append([]byte(nil), body...)}
	select {
	case q <- msg:
		return nil
	case <-b.done:
		return messaging.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe blocks consuming topic until ctx is canceled or the broker is
// closed. Failed deliveries are requeued after a short delay.
func (b *Broker) Subscribe(ctx context.Context, topic, _ string, h messaging.Handler) error {
	q, err := b.queue(topic)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return nil
		case msg := <-q:
			if err := h(ctx, msg); err != nil {
				logger.Warn(ctx, "memory broker redelivering message", "topic", topic, "key", msg.Key, "error", err)
				go b.redeliver(q, msg)
			}
		}
	}
}

func (b *Broker) redeliver(q chan messaging.Message, msg messaging.Message) {
	select {
	case <-time.After(redeliveryDelay):
	case <-b.done:
		return
	}
	select {
	case q <- msg:
	case <-b.done:
	}
}

// Close stops all subscribers.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}
