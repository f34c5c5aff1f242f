package config

import (
	"time"

	"github.com/spf13/viper"
)

// Batch lifecycle settings.
type Batch struct {
	// Storage selects the job repository: "redis" or "memory".
	Storage     string
	MaxJobs     int
	MaxAttempts int
	Retention   time.Duration
	EventTTL    time.Duration
	StaleAfter  time.Duration
	SweepSpec   string
	SubmitRate  float64
	SubmitBurst int
}

func getBatchConfig(v *viper.Viper) *Batch {
	storage := "memory"
	if v.GetString("data.redis.addr") != "" {
		storage = "redis"
	}
	return &Batch{
		Storage:     getStringOrDefault(v, "batch.storage", storage),
		MaxJobs:     getIntOrDefault(v, "batch.max_jobs", 50),
		MaxAttempts: getIntOrDefault(v, "batch.max_attempts", 3),
		Retention:   getDurationOrDefault(v, "batch.retention", 7*24*time.Hour),
		EventTTL:    getDurationOrDefault(v, "batch.event_ttl", 24*time.Hour),
		StaleAfter:  getDurationOrDefault(v, "batch.stale_after", 30*time.Minute),
		SweepSpec:   getStringOrDefault(v, "batch.sweep_spec", "@every 1m"),
		SubmitRate:  getFloat64OrDefault(v, "batch.submit_rate", 2),
		SubmitBurst: getIntOrDefault(v, "batch.submit_burst", 5),
	}
}
