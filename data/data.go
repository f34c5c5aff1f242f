package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/studio233/batchd/data/config"
	"github.com/studio233/batchd/data/messaging"
	kafkabroker "github.com/studio233/batchd/data/messaging/kafka"
	"github.com/studio233/batchd/data/messaging/memory"
	"github.com/studio233/batchd/data/messaging/rabbitmq"
	"github.com/studio233/batchd/logging/logger"
)

// Data holds the connections used by the service. Every field is optional;
// components fall back to in-memory implementations when one is absent.
type Data struct {
	conf *config.Config

	DB     *sql.DB
	Redis  *redis.Client
	Broker messaging.Broker

	rmq   *amqp.Connection
	kafka *kafka.Conn

	mu     sync.Mutex
	closed bool
}

// New opens every configured connection through the registered drivers and
// returns the data layer with a cleanup function.
func New(ctx context.Context, cfg *config.Config) (*Data, func(), error) {
	d := &Data{conf: cfg}

	if err := d.open(ctx); err != nil {
		if errs := d.Close(); len(errs) > 0 {
			logger.Error(ctx, "data cleanup after failed open", "error", errors.Join(errs...))
		}
		return nil, nil, err
	}

	cleanup := func() {
		if errs := d.Close(); len(errs) > 0 {
			logger.Error(context.Background(), "data cleanup errors", "error", errors.Join(errs...))
		}
	}
	return d, cleanup, nil
}

func (d *Data) open(ctx context.Context) error {
	cfg := d.conf

	if cfg.Database != nil && cfg.Database.Source != "" {
		drv, err := GetDatabaseDriver(cfg.Database.Driver)
		if err != nil {
			return err
		}
		conn, err := drv.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		d.DB = conn.(*sql.DB)
		logger.Info(ctx, "database connected", "driver", cfg.Database.Driver)
	}

	if cfg.Redis != nil && cfg.Redis.Addr != "" {
		drv, err := GetCacheDriver("redis")
		if err != nil {
			return err
		}
		conn, err := drv.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		d.Redis = conn.(*redis.Client)
		logger.Info(ctx, "redis connected", "addr", cfg.Redis.Addr)
	}

	provider := config.ProviderMemory
	if cfg.Messaging != nil {
		provider = cfg.Messaging.Provider
	}

	switch provider {
	case config.ProviderRabbitMQ:
		drv, err := GetMessageDriver(provider)
		if err != nil {
			return err
		}
		conn, err := drv.Connect(ctx, cfg.RabbitMQ)
		if err != nil {
			return err
		}
		d.rmq = conn.(*amqp.Connection)
		d.Broker = rabbitmq.New(d.rmq, cfg.RabbitMQ, cfg.Messaging)
	case config.ProviderKafka:
		drv, err := GetMessageDriver(provider)
		if err != nil {
			return err
		}
		conn, err := drv.Connect(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		d.kafka = conn.(*kafka.Conn)
		d.Broker = kafkabroker.New(cfg.Kafka, cfg.Messaging)
	case config.ProviderMemory, "":
		d.Broker = memory.New()
	default:
		return fmt.Errorf("data: unknown messaging provider %q", provider)
	}
	logger.Info(ctx, "messaging ready", "provider", provider)

	return nil
}

// Config returns the data configuration.
func (d *Data) Config() *config.Config {
	return d.conf
}

// Close closes all connections. It is safe to call more than once.
func (d *Data) Close() (errs []error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.Broker != nil {
		if err := d.Broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("broker close error: %w", err))
		}
	}
	if d.kafka != nil {
		if err := d.kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close error: %w", err))
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", err))
		}
	}
	return errs
}

var errConnClosed = errors.New("connection closed")
