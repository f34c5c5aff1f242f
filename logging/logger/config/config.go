package config

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config configuration struct
type Config struct {
	Level           logrus.Level     `json:"level" yaml:"level"`
	Format          string           `json:"format" yaml:"format"`
	Output          string           `json:"output" yaml:"output"`
	OutputFile      string           `json:"output_file" yaml:"output_file"`
	Desensitization *Desensitization `json:"desensitization" yaml:"desensitization"`
}

// GetConfig returns the logger configuration
func GetConfig(v *viper.Viper) *Config {
	output := v.GetString("logger.output")
	if output == "" {
		output = "stdout"
	}
	return &Config{
		Level:           ParseLevel(v.GetString("logger.level")),
		Format:          v.GetString("logger.format"),
		Output:          output,
		OutputFile:      v.GetString("logger.output_file"),
		Desensitization: getDesensitizationConfigs(v),
	}
}

// ParseLevel accepts a logrus level name ("debug", "warn") or its number
// (0 panic .. 6 trace). Anything else yields info.
func ParseLevel(raw string) logrus.Level {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if n >= int(logrus.PanicLevel) && n <= int(logrus.TraceLevel) {
			return logrus.Level(n)
		}
		return logrus.InfoLevel
	}
	if l, err := logrus.ParseLevel(raw); err == nil {
		return l
	}
	return logrus.InfoLevel
}
