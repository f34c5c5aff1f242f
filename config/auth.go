package config

import (
	"time"

	"github.com/spf13/viper"
)

// Auth covers bearer tokens for API users and the shared secret for worker
// callbacks.
type Auth struct {
	JWT     *JWT     `json:"jwt" yaml:"jwt"`
	Webhook *Webhook `json:"webhook" yaml:"webhook"`
}

// JWT signs and verifies access tokens (HS256).
type JWT struct {
	Secret string        `json:"secret" yaml:"secret"`
	Issuer string        `json:"issuer" yaml:"issuer"`
	Expire time.Duration `json:"expire" yaml:"expire"`
}

// Webhook verifies signed worker callbacks. An empty Secret disables the
// webhook endpoint.
type Webhook struct {
	Secret    string        `json:"secret" yaml:"secret"`
	Tolerance time.Duration `json:"tolerance" yaml:"tolerance"`
}

func getAuth(v *viper.Viper) *Auth {
	return &Auth{
		JWT: &JWT{
			Secret: v.GetString("auth.jwt.secret"),
			Issuer: getStringOrDefault(v, "auth.jwt.issuer", "batchd"),
			Expire: getDurationOrDefault(v, "auth.jwt.expire", 24*time.Hour),
		},
		Webhook: &Webhook{
			Secret:    v.GetString("auth.webhook.secret"),
			Tolerance: getDurationOrDefault(v, "auth.webhook.tolerance", 5*time.Minute),
		},
	}
}
