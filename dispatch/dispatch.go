// Package dispatch hands jobs to the hosted job queue and carries worker
// events back. Both directions ride on a messaging.Broker.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/data/config"
	"github.com/studio233/batchd/data/messaging"
	"github.com/studio233/batchd/metrics"
)

// Dispatcher enqueues a job on the hosted queue
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *structs.DispatchMessage) error
}

// BrokerDispatcher publishes dispatch messages keyed by job id
type BrokerDispatcher struct {
	broker  messaging.Broker
	topic   string
	timeout time.Duration
}

// New returns a dispatcher publishing to cfg.DispatchTopic
func New(broker messaging.Broker, cfg *config.Messaging) *BrokerDispatcher {
	return &BrokerDispatcher{broker: broker, topic: cfg.DispatchTopic, timeout: cfg.PublishTimeout}
}

func (d *BrokerDispatcher) Dispatch(ctx context.Context, msg *structs.DispatchMessage) (err error) {
	defer func() { metrics.Dispatch(err) }()
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode dispatch message: %w", err)
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := d.broker.Publish(ctx, d.topic, msg.JobID, body); err != nil {
		return fmt.Errorf("dispatch job %s: %w", msg.JobID, err)
	}
	return nil
}

// JobHandler processes a dispatched job on the worker side
type JobHandler func(ctx context.Context, msg *structs.DispatchMessage) error

// ConsumeJobs subscribes to the dispatch topic until ctx is canceled.
// Undecodable messages are dropped.
func ConsumeJobs(ctx context.Context, broker messaging.Broker, cfg *config.Messaging, group string, h JobHandler) error {
	return broker.Subscribe(ctx, cfg.DispatchTopic, group, func(ctx context.Context, m messaging.Message) error {
		var msg structs.DispatchMessage
		if err := json.Unmarshal(m.Body, &msg); err != nil || msg.JobID == "" {
			logDropped(ctx, m, "undecodable dispatch message", err)
			return nil
		}
		return h(ctx, &msg)
	})
}
