package config

import (
	"time"

	"github.com/spf13/viper"
)

// Gateway AI model provider settings. Models maps an operation name to the
// provider model version that implements it.
type Gateway struct {
	Endpoint     string
	Token        string
	Models       map[string]string
	PollInterval time.Duration
	Timeout      time.Duration
}

// DefaultModels lists the operations offered when none are configured.
var DefaultModels = map[string]string{
	"upscale":           "nightmareai/real-esrgan",
	"remove-background": "cjwbw/rembg",
	"restore":           "tencentarc/gfpgan",
}

func getGatewayConfig(v *viper.Viper) *Gateway {
	models := v.GetStringMapString("gateway.models")
	if len(models) == 0 {
		models = make(map[string]string, len(DefaultModels))
		for k, m := range DefaultModels {
			models[k] = m
		}
	}
	return &Gateway{
		Endpoint:     getStringOrDefault(v, "gateway.endpoint", "https://api.replicate.com/v1"),
		Token:        v.GetString("gateway.token"),
		Models:       models,
		PollInterval: getDurationOrDefault(v, "gateway.poll_interval", time.Second),
		Timeout:      getDurationOrDefault(v, "gateway.timeout", 4*time.Minute),
	}
}

// Operations returns the configured operation names.
func (g *Gateway) Operations() []string {
	ops := make([]string, 0, len(g.Models))
	for op := range g.Models {
		ops = append(ops, op)
	}
	return ops
}
