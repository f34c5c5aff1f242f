package config

import (
	"time"

	"github.com/spf13/viper"
)

// Worker settings for the reference processor.
type Worker struct {
	Group          string
	MaxWorkers     int
	QueueSize      int
	TaskTimeout    time.Duration
	MaxOutputBytes int64
	RetryDelay     time.Duration
	// CallbackURL switches event delivery from the broker to signed webhooks.
	CallbackURL string
}

func getWorkerConfig(v *viper.Viper) *Worker {
	return &Worker{
		Group:          getStringOrDefault(v, "worker.group", "batchd-worker"),
		MaxWorkers:     getIntOrDefault(v, "worker.max_workers", 4),
		QueueSize:      getIntOrDefault(v, "worker.queue_size", 64),
		TaskTimeout:    getDurationOrDefault(v, "worker.task_timeout", 5*time.Minute),
		MaxOutputBytes: getInt64OrDefault(v, "worker.max_output_bytes", 25<<20),
		RetryDelay:     getDurationOrDefault(v, "worker.retry_delay", 2*time.Second),
		CallbackURL:    v.GetString("worker.callback_url"),
	}
}
