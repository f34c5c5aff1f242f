package config

import (
	"time"

	"github.com/spf13/viper"
)

// Messaging providers
const (
	ProviderRabbitMQ = "rabbitmq"
	ProviderKafka    = "kafka"
	ProviderMemory   = "memory"
)

// Messaging selects the broker and names the dispatch and event topics.
type Messaging struct {
	Provider        string        `json:"provider" yaml:"provider"`
	DispatchTopic   string        `json:"dispatch_topic" yaml:"dispatch_topic"`
	EventTopic      string        `json:"event_topic" yaml:"event_topic"`
	PublishTimeout  time.Duration `json:"publish_timeout" yaml:"publish_timeout"`
	RetryAttempts   int           `json:"retry_attempts" yaml:"retry_attempts"`
	RetryBackoffMax time.Duration `json:"retry_backoff_max" yaml:"retry_backoff_max"`
}

func getMessagingConfig(v *viper.Viper) *Messaging {
	return &Messaging{
		Provider:        messagingProvider(v),
		DispatchTopic:   str(v, "data.messaging.dispatch_topic", "batchd.jobs"),
		EventTopic:      str(v, "data.messaging.event_topic", "batchd.events"),
		PublishTimeout:  span(v, "data.messaging.publish_timeout", 30*time.Second),
		RetryAttempts:   positive(v, "data.messaging.retry_attempts", 3),
		RetryBackoffMax: span(v, "data.messaging.retry_backoff_max", 30*time.Second),
	}
}

// messagingProvider honours an explicit provider, then prefers RabbitMQ over
// Kafka when brokers are configured.
func messagingProvider(v *viper.Viper) string {
	if p := v.GetString("data.messaging.provider"); p != "" {
		return p
	}
	switch {
	case v.IsSet("data.rabbitmq.url"):
		return ProviderRabbitMQ
	case v.IsSet("data.kafka.brokers"):
		return ProviderKafka
	}
	return ProviderMemory
}

// RabbitMQ connection. URL may be a full amqp(s):// URL or a bare host:port
// completed with Username, Password and Vhost.
type RabbitMQ struct {
	URL               string        `json:"url" yaml:"url"`
	Username          string        `json:"username" yaml:"username"`
	Password          string        `json:"password" yaml:"password"`
	Vhost             string        `json:"vhost" yaml:"vhost"`
	Exchange          string        `json:"exchange" yaml:"exchange"`
	Prefetch          int           `json:"prefetch" yaml:"prefetch"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
}

func getRabbitMQConfig(v *viper.Viper) *RabbitMQ {
	return &RabbitMQ{
		URL:               v.GetString("data.rabbitmq.url"),
		Username:          v.GetString("data.rabbitmq.username"),
		Password:          v.GetString("data.rabbitmq.password"),
		Vhost:             v.GetString("data.rabbitmq.vhost"),
		Exchange:          str(v, "data.rabbitmq.exchange", "batchd"),
		Prefetch:          positive(v, "data.rabbitmq.prefetch", 16),
		HeartbeatInterval: span(v, "data.rabbitmq.heartbeat_interval", 10*time.Second),
	}
}

// Kafka brokers. Messages are keyed by job id.
type Kafka struct {
	Brokers        []string      `json:"brokers" yaml:"brokers"`
	ClientID       string        `json:"client_id" yaml:"client_id"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

func getKafkaConfig(v *viper.Viper) *Kafka {
	return &Kafka{
		Brokers:        v.GetStringSlice("data.kafka.brokers"),
		ClientID:       str(v, "data.kafka.client_id", "batchd"),
		ConnectTimeout: span(v, "data.kafka.connect_timeout", 10*time.Second),
		WriteTimeout:   span(v, "data.kafka.write_timeout", 10*time.Second),
	}
}
