// Package billing debits and refunds the per-user usage quota.
//
// Every mutation carries an idempotency key. Replaying a key is a no-op, so
// callers can retry freely after timeouts.
package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/studio233/batchd/config"
)

var (
	ErrInsufficientQuota = errors.New("insufficient quota")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrUnavailable       = errors.New("billing service unavailable")
)

const (
	ProviderLedger = "ledger"
	ProviderRemote = "remote"
	ProviderMemory = "memory"
)

const (
	kindDebit  = "debit"
	kindRefund = "refund"
	kindGrant  = "grant"
)

// Service is a usage quota account store
type Service interface {
	// Debit withdraws amount, failing with ErrInsufficientQuota when the balance is short
	Debit(ctx context.Context, userID string, amount int64, key string) error
	// Refund returns a previous debit
	Refund(ctx context.Context, userID string, amount int64, key string) error
	// Grant adds quota
	Grant(ctx context.Context, userID string, amount int64, key string) error
	Balance(ctx context.Context, userID string) (int64, error)
}

// New builds the service selected by cfg.Provider. db and driver back the
// ledger provider; a non-nil rc enables balance caching.
func New(cfg *config.Billing, db *sql.DB, driver string, rc *redis.Client) (Service, error) {
	var svc Service
	switch cfg.Provider {
	case ProviderLedger, "":
		if db == nil {
			return nil, errors.New("billing ledger requires a database")
		}
		svc = NewLedger(db, driver, cfg.InitialGrant)
	case ProviderRemote:
		r, err := NewRemote(cfg.Remote)
		if err != nil {
			return nil, err
		}
		svc = r
	case ProviderMemory:
		svc = NewMemory(cfg.InitialGrant)
	default:
		return nil, fmt.Errorf("unknown billing provider %q", cfg.Provider)
	}
	if rc != nil && cfg.CacheTTL > 0 {
		svc = NewCached(svc, rc, cfg.CacheTTL)
	}
	return svc, nil
}

// Costs prices operations
type Costs struct {
	table map[string]int64
	def   int64
}

// NewCosts builds the cost table from cfg
func NewCosts(cfg *config.Billing) *Costs {
	def := cfg.DefaultCost
	if def <= 0 {
		def = 1
	}
	return &Costs{table: cfg.Costs, def: def}
}

// Of returns the cost of one job running op
func (c *Costs) Of(op string) int64 {
	if v, ok := c.table[op]; ok && v >= 0 {
		return v
	}
	return c.def
}

func validate(userID string, amount int64, key string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if userID == "" || key == "" {
		return errors.New("user id and idempotency key are required")
	}
	return nil
}
