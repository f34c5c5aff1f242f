package config

import (
	"time"

	"github.com/spf13/viper"
)

// Consul service registration. Empty Address disables it.
type Consul struct {
	Address string            `json:"address" yaml:"address"`
	Scheme  string            `json:"scheme" yaml:"scheme"`
	Tags    []string          `json:"tags" yaml:"tags"`
	Meta    map[string]string `json:"meta" yaml:"meta"`
	// Check registers an HTTP check against /health.
	Check           bool          `json:"check" yaml:"check"`
	CheckInterval   time.Duration `json:"check_interval" yaml:"check_interval"`
	CheckTimeout    time.Duration `json:"check_timeout" yaml:"check_timeout"`
	DeregisterAfter time.Duration `json:"deregister_after" yaml:"deregister_after"`
}

// Enabled reports whether registration should happen.
func (c *Consul) Enabled() bool {
	return c != nil && c.Address != ""
}

func getConsulConfig(v *viper.Viper) *Consul {
	return &Consul{
		Address:         v.GetString("consul.address"),
		Scheme:          getStringOrDefault(v, "consul.scheme", "http"),
		Tags:            v.GetStringSlice("consul.tags"),
		Meta:            v.GetStringMapString("consul.meta"),
		Check:           getBoolOrDefault(v, "consul.check", true),
		CheckInterval:   getDurationOrDefault(v, "consul.check_interval", 10*time.Second),
		CheckTimeout:    getDurationOrDefault(v, "consul.check_timeout", 5*time.Second),
		DeregisterAfter: getDurationOrDefault(v, "consul.deregister_after", 5*time.Minute),
	}
}
