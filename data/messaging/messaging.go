// Package messaging defines the broker abstraction used for job dispatch and
// worker events. Delivery is at-least-once: a handler error leaves the
// message to be redelivered.
package messaging

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing on a closed broker.
var ErrClosed = errors.New("messaging: broker closed")

// Message is a single delivery.
type Message struct {
	Topic string
	Key   string
	Body  []byte
}

// Handler processes a delivery. Returning an error requests redelivery.
type Handler func(ctx context.Context, msg Message) error

// Broker publishes and consumes keyed messages.
type Broker interface {
	// Publish sends body to topic. key groups related messages (job id).
	Publish(ctx context.Context, topic, key string, body []byte) error
	// Subscribe consumes topic as part of group until ctx is canceled.
	Subscribe(ctx context.Context, topic, group string, h Handler) error
	Close() error
}
