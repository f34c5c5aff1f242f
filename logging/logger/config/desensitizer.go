package config

import "github.com/spf13/viper"

// Desensitization holds desensitization settings
type Desensitization struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	SensitiveFields []string `json:"sensitive_fields" yaml:"sensitive_fields"`
	MaskChar        string   `json:"mask_char" yaml:"mask_char"`
	FixedMaskLength int      `json:"fixed_mask_length" yaml:"fixed_mask_length"`
}

// Default sensitive field patterns
var defaultSensitiveFields = []string{
	"password", "token", "access_token", "authorization",
	"secret", "api_key", "signature", "email",
}

const (
	defaultMaskChar        = "*"
	defaultFixedMaskLength = 6
)

// getDesensitizationConfigs reads and returns desensitization configuration
func getDesensitizationConfigs(v *viper.Viper) *Desensitization {
	if !v.IsSet("logger.desensitization") {
		return DefaultDesensitization()
	}

	d := &Desensitization{
		Enabled:         v.GetBool("logger.desensitization.enabled"),
		SensitiveFields: v.GetStringSlice("logger.desensitization.sensitive_fields"),
		MaskChar:        v.GetString("logger.desensitization.mask_char"),
		FixedMaskLength: v.GetInt("logger.desensitization.fixed_mask_length"),
	}
	if len(d.SensitiveFields) == 0 {
		d.SensitiveFields = defaultSensitiveFields
	}
	if d.MaskChar == "" {
		d.MaskChar = defaultMaskChar
	}
	if d.FixedMaskLength <= 0 {
		d.FixedMaskLength = defaultFixedMaskLength
	}
	return d
}

// DefaultDesensitization returns the settings used when none are configured
func DefaultDesensitization() *Desensitization {
	return &Desensitization{
		Enabled:         true,
		SensitiveFields: defaultSensitiveFields,
		MaskChar:        defaultMaskChar,
		FixedMaskLength: defaultFixedMaskLength,
	}
}
