package rabbitmq

import (
	"testing"

	"github.com/studio233/batchd/data/config"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.RabbitMQ
		want string
	}{
		{"full url", config.RabbitMQ{URL: "amqp://guest:guest@mq:5672/"}, "amqp://guest:guest@mq:5672/"},
		{"host only", config.RabbitMQ{URL: "mq:5672"}, "amqp://mq:5672/"},
		{"credentials", config.RabbitMQ{URL: "mq:5672", Username: "u", Password: "p"}, "amqp://u:p@mq:5672/"},
		{"vhost", config.RabbitMQ{URL: "mq:5672", Vhost: "jobs"}, "amqp://mq:5672/jobs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildURL(&tt.cfg)
			if err != nil {
				t.Fatalf("BuildURL: %v", err)
			}
			if got != tt.want {
				t.Errorf("BuildURL() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := BuildURL(&config.RabbitMQ{}); err == nil {
		t.Error("expected error for empty URL")
	}
}
