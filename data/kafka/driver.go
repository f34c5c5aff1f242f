// Package kafka registers the Kafka message driver.
//
//	import _ "github.com/studio233/batchd/data/kafka"
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/studio233/batchd/data"
	"github.com/studio233/batchd/data/config"
)

type driver struct{}

func (driver) Name() string { return "kafka" }

// Connect returns a *kafka.Conn to the first reachable broker. The
// connection only serves health checks; writers and readers dial the full
// broker list on their own.
func (driver) Connect(ctx context.Context, cfg any) (any, error) {
	kc, ok := cfg.(*config.Kafka)
	if !ok {
		return nil, fmt.Errorf("kafka: expected *config.Kafka, got %T", cfg)
	}
	if len(kc.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	dialer := &kafka.Dialer{ClientID: kc.ClientID, Timeout: kc.ConnectTimeout}
	var errs []error
	for _, broker := range kc.Brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", broker, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("kafka: no broker reachable: %w", errors.Join(errs...))
}

func (driver) Close(conn any) error {
	c, ok := conn.(*kafka.Conn)
	if !ok {
		return fmt.Errorf("kafka: expected *kafka.Conn, got %T", conn)
	}
	return c.Close()
}

func init() {
	data.RegisterMessageDriver(driver{})
}
