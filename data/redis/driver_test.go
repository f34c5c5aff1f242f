package redis

import (
	"context"
	"testing"
	"time"

	"github.com/studio233/batchd/data/config"
)

func TestOptions(t *testing.T) {
	cfg := &config.Redis{Addr: "cache:6379", DB: 2, PoolSize: 4, DialTimeout: time.Second}
	opts := options(cfg)
	if opts.Addr != "cache:6379" || opts.DB != 2 || opts.PoolSize != 4 {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.TLSConfig != nil {
		t.Error("TLS should be off by default")
	}

	cfg.TLS = true
	if options(cfg).TLSConfig == nil {
		t.Error("TLS config missing")
	}
}

func TestConnectValidates(t *testing.T) {
	var d driver
	if _, err := d.Connect(context.Background(), "redis://"); err == nil {
		t.Error("expected config type error")
	}
	if _, err := d.Connect(context.Background(), &config.Redis{}); err == nil {
		t.Error("expected empty address error")
	}
}
