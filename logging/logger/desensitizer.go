package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/studio233/batchd/logging/logger/config"
)

// Desensitizer masks values of sensitive log fields
type Desensitizer struct {
	config *config.Desensitization
	fields map[string]struct{}
}

// NewDesensitizer creates a new desensitizer instance
func NewDesensitizer(cfg *config.Desensitization) *Desensitizer {
	if cfg == nil {
		cfg = config.DefaultDesensitization()
	}
	d := &Desensitizer{config: cfg, fields: make(map[string]struct{}, len(cfg.SensitiveFields))}
	for _, f := range cfg.SensitiveFields {
		d.fields[strings.ToLower(f)] = struct{}{}
	}
	return d
}

// DesensitizeFields returns a copy of fields with sensitive values masked
func (d *Desensitizer) DesensitizeFields(fields logrus.Fields) logrus.Fields {
	if d == nil || !d.config.Enabled {
		return fields
	}
	result := make(logrus.Fields, len(fields))
	for key, value := range fields {
		if d.isSensitiveField(key) && value != nil {
			result[key] = strings.Repeat(d.config.MaskChar, d.config.FixedMaskLength)
			continue
		}
		result[key] = value
	}
	return result
}

// isSensitiveField matches exact names and suffixes such as "webhook_secret"
func (d *Desensitizer) isSensitiveField(key string) bool {
	key = strings.ToLower(key)
	if _, ok := d.fields[key]; ok {
		return true
	}
	for f := range d.fields {
		if strings.HasSuffix(key, "_"+f) {
			return true
		}
	}
	return false
}
