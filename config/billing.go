package config

import (
	"time"

	"github.com/spf13/viper"
)

// Billing usage quota settings. Provider is "ledger" (SQL) or "remote".
type Billing struct {
	Provider     string
	DefaultCost  int64
	Costs        map[string]int64
	InitialGrant int64
	CacheTTL     time.Duration
	Remote       *BillingRemote
}

// BillingRemote hosted billing service endpoint.
type BillingRemote struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// Circuit breaker settings
	MaxRequests  uint32
	Interval     time.Duration
	OpenTimeout  time.Duration
	MinRequests  uint32
	FailureRatio float64
}

func getBillingConfig(v *viper.Viper) *Billing {
	costs := map[string]int64{}
	for op := range v.GetStringMap("billing.costs") {
		costs[op] = v.GetInt64("billing.costs." + op)
	}
	return &Billing{
		Provider:     getStringOrDefault(v, "billing.provider", "ledger"),
		DefaultCost:  getInt64OrDefault(v, "billing.default_cost", 1),
		Costs:        costs,
		InitialGrant: getInt64OrDefault(v, "billing.initial_grant", 0),
		CacheTTL:     getDurationOrDefault(v, "billing.cache_ttl", 30*time.Second),
		Remote: &BillingRemote{
			Endpoint:     v.GetString("billing.remote.endpoint"),
			APIKey:       v.GetString("billing.remote.api_key"),
			Timeout:      getDurationOrDefault(v, "billing.remote.timeout", 5*time.Second),
			MaxRequests:  getUint32OrDefault(v, "billing.remote.breaker.max_requests", 100),
			Interval:     getDurationOrDefault(v, "billing.remote.breaker.interval", 5*time.Second),
			OpenTimeout:  getDurationOrDefault(v, "billing.remote.breaker.timeout", 3*time.Second),
			MinRequests:  getUint32OrDefault(v, "billing.remote.breaker.min_requests", 3),
			FailureRatio: getFloat64OrDefault(v, "billing.remote.breaker.failure_ratio", 0.6),
		},
	}
}
