// Package rabbitmq registers the RabbitMQ message driver.
//
// The driver uses amqp091-go and is enabled by importing the package:
//
//	import _ "github.com/studio233/batchd/data/rabbitmq"
package rabbitmq

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/studio233/batchd/data"
	"github.com/studio233/batchd/data/config"
)

type driver struct{}

func (d *driver) Name() string {
	return "rabbitmq"
}

// Connect dials RabbitMQ and returns an *amqp.Connection. URL may be a full
// amqp:// or amqps:// URL or a bare host:port, in which case credentials and
// vhost come from the remaining fields.
func (d *driver) Connect(ctx context.Context, cfg any) (any, error) {
	rmqCfg, ok := cfg.(*config.RabbitMQ)
	if !ok {
		return nil, fmt.Errorf("rabbitmq: invalid configuration type, expected *config.RabbitMQ")
	}

	connURL, err := BuildURL(rmqCfg)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(connURL, amqp.Config{
		Heartbeat: rmqCfg.HeartbeatInterval,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: failed to connect: %w", err)
	}

	return conn, nil
}

// BuildURL returns the AMQP URL for the configuration.
func BuildURL(cfg *config.RabbitMQ) (string, error) {
	if cfg.URL == "" {
		return "", fmt.Errorf("rabbitmq: URL is empty")
	}
	if strings.HasPrefix(cfg.URL, "amqp://") || strings.HasPrefix(cfg.URL, "amqps://") {
		return cfg.URL, nil
	}

	u := url.URL{Scheme: "amqp", Host: cfg.URL, Path: "/"}
	if cfg.Username != "" || cfg.Password != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	if cfg.Vhost != "" {
		u.Path = "/" + strings.TrimPrefix(cfg.Vhost, "/")
	}
	return u.String(), nil
}

func (d *driver) Close(conn any) error {
	amqpConn, ok := conn.(*amqp.Connection)
	if !ok {
		return fmt.Errorf("rabbitmq: invalid connection type, expected *amqp.Connection")
	}
	if amqpConn.IsClosed() {
		return nil
	}
	if err := amqpConn.Close(); err != nil {
		return fmt.Errorf("rabbitmq: failed to close connection: %w", err)
	}
	return nil
}

func init() {
	data.RegisterMessageDriver(&driver{})
}
