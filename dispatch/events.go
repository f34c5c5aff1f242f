package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/data/config"
	"github.com/studio233/batchd/data/messaging"
	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/security/signature"
)

// EventHandler applies a worker event
type EventHandler func(ctx context.Context, ev *structs.Event) error

// EventConsumer feeds worker events from the bus into a handler.
// Errors for which permanent returns true are logged and acknowledged;
// everything else is redelivered.
type EventConsumer struct {
	broker    messaging.Broker
	topic     string
	group     string
	handle    EventHandler
	permanent func(error) bool
}

// NewEventConsumer subscribes handle to cfg.EventTopic as group
func NewEventConsumer(broker messaging.Broker, cfg *config.Messaging, group string, handle EventHandler, permanent func(error) bool) *EventConsumer {
	if permanent == nil {
		permanent = func(error) bool { return false }
	}
	return &EventConsumer{
		broker:    broker,
		topic:     cfg.EventTopic,
		group:     group,
		handle:    handle,
		permanent: permanent,
	}
}

// Run blocks until ctx is canceled
func (c *EventConsumer) Run(ctx context.Context) error {
	logger.Info(ctx, "event consumer started", "topic", c.topic, "group", c.group)
	err := c.broker.Subscribe(ctx, c.topic, c.group, c.deliver)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *EventConsumer) deliver(ctx context.Context, m messaging.Message) error {
	var ev structs.Event
	if err := json.Unmarshal(m.Body, &ev); err != nil {
		logDropped(ctx, m, "undecodable event", err)
		return nil
	}
	if err := c.handle(ctx, &ev); err != nil {
		if c.permanent(err) {
			logDropped(ctx, m, "event rejected", err)
			return nil
		}
		return err
	}
	return nil
}

func logDropped(ctx context.Context, m messaging.Message, reason string, err error) {
	logger.Warn(ctx, reason, "topic", m.Topic, "key", m.Key, "error", err)
}

// EventPublisher reports job progress from a worker
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *structs.Event) error
}

// BrokerEvents publishes events onto the event topic keyed by job id
type BrokerEvents struct {
	broker messaging.Broker
	topic  string
}

// NewBrokerEvents returns a publisher for cfg.EventTopic
func NewBrokerEvents(broker messaging.Broker, cfg *config.Messaging) *BrokerEvents {
	return &BrokerEvents{broker: broker, topic: cfg.EventTopic}
}

func (p *BrokerEvents) PublishEvent(ctx context.Context, ev *structs.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.broker.Publish(ctx, p.topic, ev.JobID, body)
}

// WebhookEvents posts signed events to a callback URL
type WebhookEvents struct {
	url    string
	secret string
	client *http.Client
	now    func() time.Time
}

// NewWebhookEvents returns a publisher posting to url, signing with secret
func NewWebhookEvents(url, secret string, timeout time.Duration) *WebhookEvents {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookEvents{url: url, secret: secret, client: &http.Client{Timeout: timeout}, now: time.Now}
}

func (p *WebhookEvents) PublishEvent(ctx context.Context, ev *structs.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.Header, signature.Sign(p.secret, body, p.now()))
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event %s: %w", ev.ID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post event %s: status %d", ev.ID, resp.StatusCode)
	}
	return nil
}
