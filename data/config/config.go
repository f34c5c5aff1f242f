// Package config reads the data section of the service configuration:
// the ledger database, Redis and the message brokers.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config data config struct
type Config struct {
	*Database  `yaml:"database" json:"database"`
	*Redis     `yaml:"redis" json:"redis"`
	*RabbitMQ  `yaml:"rabbitmq" json:"rabbitmq"`
	*Kafka     `yaml:"kafka" json:"kafka"`
	*Messaging `yaml:"messaging" json:"messaging"`
}

// GetConfig returns data config
func GetConfig(v *viper.Viper) *Config {
	return &Config{
		Database:  getDatabaseConfig(v),
		Redis:     getRedisConfig(v),
		RabbitMQ:  getRabbitMQConfig(v),
		Kafka:     getKafkaConfig(v),
		Messaging: getMessagingConfig(v),
	}
}

// str, positive and span fall back to def on empty or non-positive values,
// so a zero in the file means "use the default".

func str(v *viper.Viper, key, def string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	return def
}

func positive(v *viper.Viper, key string, def int) int {
	if n := v.GetInt(key); n > 0 {
		return n
	}
	return def
}

func span(v *viper.Viper, key string, def time.Duration) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	return def
}
