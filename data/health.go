package data

import (
	"context"
	"time"
)

// Health status values
const (
	StatusUp       = "up"
	StatusDown     = "down"
	StatusDisabled = "disabled"
)

// Health pings every connection and reports per-service status. The overall
// status is "down" when any configured service fails.
func (d *Data) Health(ctx context.Context) map[string]any {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	services := map[string]any{}
	healthy := true

	check := func(name string, enabled bool, ping func() error) {
		if !enabled {
			services[name] = map[string]any{"status": StatusDisabled}
			return
		}
		if err := ping(); err != nil {
			healthy = false
			services[name] = map[string]any{"status": StatusDown, "error": err.Error()}
			return
		}
		services[name] = map[string]any{"status": StatusUp}
	}

	check("database", d.DB != nil, func() error { return d.DB.PingContext(ctx) })
	check("redis", d.Redis != nil, func() error { return d.Redis.Ping(ctx).Err() })
	check("rabbitmq", d.rmq != nil, func() error {
		if d.rmq.IsClosed() {
			return errConnClosed
		}
		return nil
	})
	check("kafka", d.kafka != nil, func() error {
		_, err := d.kafka.Controller()
		return err
	})

	status := StatusUp
	if !healthy {
		status = StatusDown
	}
	return map[string]any{"status": status, "services": services}
}
