// Package rabbitmq implements messaging.Broker on a RabbitMQ topic exchange
// with publisher confirms and manual acknowledgements.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/studio233/batchd/data/config"
	"github.com/studio233/batchd/data/messaging"
	"github.com/studio233/batchd/logging/logger"
)

const defaultExchange = "batchd"

// RabbitMQ represents RabbitMQ implementation
type RabbitMQ struct {
	conn      *amqp.Connection
	exchange  string
	prefetch  int
	messaging *config.Messaging
	mu        sync.Mutex
}

var _ messaging.Broker = (*RabbitMQ)(nil)

// New wraps an established connection.
func New(conn *amqp.Connection, rmq *config.RabbitMQ, msg *config.Messaging) *RabbitMQ {
	exchange := defaultExchange
	prefetch := 16
	if rmq != nil {
		if rmq.Exchange != "" {
			exchange = rmq.Exchange
		}
		if rmq.Prefetch > 0 {
			prefetch = rmq.Prefetch
		}
	}
	if msg == nil {
		msg = &config.Messaging{PublishTimeout: 30 * time.Second}
	}
	return &RabbitMQ{conn: conn, exchange: exchange, prefetch: prefetch, messaging: msg}
}

// IsConnected checks if the RabbitMQ connection is valid
func (s *RabbitMQ) IsConnected() bool {
	return s.conn != nil && !s.conn.IsClosed()
}

// declare ensures the exchange and a durable queue bound to topic exist.
func (s *RabbitMQ) declare(ch *amqp.Channel, topic string) error {
	if err := ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(topic, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, topic, s.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Publish publishes a persistent message and waits for the broker confirm.
func (s *RabbitMQ) Publish(ctx context.Context, topic, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsConnected() {
		return fmt.Errorf("rabbitmq connection is not available")
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err = s.declare(ch, topic); err != nil {
		return err
	}
	if err = ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to put channel in confirm mode: %w", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	pubCtx, cancel := context.WithTimeout(ctx, s.messaging.PublishTimeout)
	defer cancel()

	err = ch.PublishWithContext(pubCtx, s.exchange, topic, true, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    key,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case confirmed, ok := <-confirms:
		if !ok {
			return fmt.Errorf("confirmation channel closed")
		}
		if !confirmed.Ack {
			return fmt.Errorf("failed to receive publish confirmation")
		}
	case <-pubCtx.Done():
		return fmt.Errorf("publish confirmation timed out: %w", pubCtx.Err())
	}
	return nil
}

// Subscribe consumes the topic queue until ctx is canceled. Handler errors
// nack the delivery back onto the queue.
func (s *RabbitMQ) Subscribe(ctx context.Context, topic, group string, h messaging.Handler) error {
	if !s.IsConnected() {
		return fmt.Errorf("rabbitmq connection is not available")
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := s.declare(ch, topic); err != nil {
		return err
	}
	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(topic, group, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			msg := messaging.Message{Topic: topic, Key: d.MessageId, Body: d.Body}
			if err := h(ctx, msg); err != nil {
				logger.Warn(ctx, "rabbitmq handler failed, requeueing", "topic", topic, "key", d.MessageId, "error", err)
				if nerr := d.Nack(false, true); nerr != nil {
					logger.Error(ctx, "rabbitmq nack failed", "error", nerr)
				}
				continue
			}
			if err := d.Ack(false); err != nil {
				logger.Error(ctx, "rabbitmq ack failed", "error", err)
			}
		}
	}
}

// Close closes the RabbitMQ connection.
func (s *RabbitMQ) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsConnected() {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close RabbitMQ connection: %w", err)
	}
	return nil
}
