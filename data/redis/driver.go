// Package redis registers the Redis cache driver backing job records.
//
//	import _ "github.com/studio233/batchd/data/redis"
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/studio233/batchd/data"
	"github.com/studio233/batchd/data/config"
)

type driver struct{}

func (driver) Name() string { return "redis" }

// options maps the data config onto go-redis options.
func options(cfg *config.Redis) *redis.Options {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		DialTimeout:  cfg.DialTimeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

func (driver) Connect(ctx context.Context, cfg any) (any, error) {
	rc, ok := cfg.(*config.Redis)
	if !ok {
		return nil, fmt.Errorf("redis: expected *config.Redis, got %T", cfg)
	}
	if rc.Addr == "" {
		return nil, fmt.Errorf("redis: address is empty")
	}

	client := redis.NewClient(options(rc))
	pingCtx, cancel := context.WithTimeout(ctx, rc.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", rc.Addr, err)
	}
	return client, nil
}

func (d driver) Close(conn any) error {
	client, err := d.client(conn)
	if err != nil {
		return err
	}
	return client.Close()
}

func (d driver) Ping(ctx context.Context, conn any) error {
	client, err := d.client(conn)
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}

func (driver) client(conn any) (*redis.Client, error) {
	c, ok := conn.(*redis.Client)
	if !ok {
		return nil, fmt.Errorf("redis: expected *redis.Client, got %T", conn)
	}
	return c, nil
}

func init() {
	data.RegisterCacheDriver(driver{})
}
