package config

import (
	"time"

	"github.com/spf13/viper"
)

// Observes groups error reporting and tracing. Environment applies to both
// unless a section overrides it.
type Observes struct {
	Environment string  `json:"environment" yaml:"environment"`
	Sentry      *Sentry `json:"sentry" yaml:"sentry"`
	Tracer      *Tracer `json:"tracer" yaml:"tracer"`
}

// Sentry reporting; disabled when Endpoint (the DSN) is empty.
type Sentry struct {
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	Environment string  `json:"environment" yaml:"environment"`
	Release     string  `json:"release" yaml:"release"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// Tracer exports OpenTelemetry spans over OTLP gRPC; disabled when Endpoint
// is empty.
type Tracer struct {
	Endpoint           string            `json:"endpoint" yaml:"endpoint"`
	ServiceName        string            `json:"service_name" yaml:"service_name"`
	Environment        string            `json:"environment" yaml:"environment"`
	SamplingRate       float64           `json:"sampling_rate" yaml:"sampling_rate"`
	MaxExportBatchSize int               `json:"max_export_batch_size" yaml:"max_export_batch_size"`
	MaxQueueSize       int               `json:"max_queue_size" yaml:"max_queue_size"`
	BatchTimeout       time.Duration     `json:"batch_timeout" yaml:"batch_timeout"`
	ExportTimeout      time.Duration     `json:"export_timeout" yaml:"export_timeout"`
	Insecure           bool              `json:"insecure" yaml:"insecure"`
	Headers            map[string]string `json:"headers" yaml:"headers"`
}

func getObservesConfig(v *viper.Viper, appName string) *Observes {
	env := getStringOrDefault(v, "observes.environment", "development")
	return &Observes{
		Environment: env,
		Sentry: &Sentry{
			Endpoint:    v.GetString("observes.sentry.endpoint"),
			Environment: getStringOrDefault(v, "observes.sentry.environment", env),
			Release:     v.GetString("observes.sentry.release"),
			SampleRate:  getFloat64OrDefault(v, "observes.sentry.sample_rate", 1.0),
		},
		Tracer: &Tracer{
			Endpoint:           v.GetString("observes.tracer.endpoint"),
			ServiceName:        getStringOrDefault(v, "observes.tracer.service_name", appName),
			Environment:        getStringOrDefault(v, "observes.tracer.environment", env),
			SamplingRate:       getFloat64OrDefault(v, "observes.tracer.sampling_rate", 1.0),
			MaxExportBatchSize: getIntOrDefault(v, "observes.tracer.max_export_batch_size", 512),
			MaxQueueSize:       getIntOrDefault(v, "observes.tracer.max_queue_size", 2048),
			BatchTimeout:       getDurationOrDefault(v, "observes.tracer.batch_timeout", 5*time.Second),
			ExportTimeout:      getDurationOrDefault(v, "observes.tracer.export_timeout", 30*time.Second),
			Insecure:           getBoolOrDefault(v, "observes.tracer.insecure", true),
			Headers:            v.GetStringMapString("observes.tracer.headers"),
		},
	}
}
