package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/studio233/batchd/logging/logger"
	"github.com/studio233/batchd/nanoid"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS quota_accounts (
	user_id    VARCHAR(64) PRIMARY KEY,
	balance    BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS quota_entries (
	id              VARCHAR(32) PRIMARY KEY,
	user_id         VARCHAR(64) NOT NULL,
	kind            VARCHAR(16) NOT NULL,
	amount          BIGINT NOT NULL,
	idempotency_key VARCHAR(191) NOT NULL UNIQUE,
	created_at      TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_quota_entries_user ON quota_entries (user_id, created_at)`,
}

// Ledger keeps balances in quota_accounts and an append-only history in
// quota_entries. The unique idempotency key on entries makes every
// mutation apply at most once.
type Ledger struct {
	db           *sql.DB
	postgres     bool
	initialGrant int64
	now          func() time.Time
	newID        func() string
}

// NewLedger returns a ledger on db. driver is the database driver name
// ("postgres" or "sqlite3") and selects the placeholder style.
func NewLedger(db *sql.DB, driver string, initialGrant int64) *Ledger {
	return &Ledger{
		db:           db,
		postgres:     driver == "postgres" || driver == "pgx",
		initialGrant: initialGrant,
		now:          time.Now,
		newID:        nanoid.PrimaryKey("qe_"),
	}
}

// Migrate creates the ledger tables
func (l *Ledger) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

// q rewrites ? placeholders to $n for postgres
func (l *Ledger) q(query string) string {
	if !l.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, key string) error {
	if err := validate(userID, amount, key); err != nil {
		return err
	}
	return l.apply(ctx, userID, -amount, kindDebit, key)
}

func (l *Ledger) Refund(ctx context.Context, userID string, amount int64, key string) error {
	if err := validate(userID, amount, key); err != nil {
		return err
	}
	return l.apply(ctx, userID, amount, kindRefund, key)
}

func (l *Ledger) Grant(ctx context.Context, userID string, amount int64, key string) error {
	if err := validate(userID, amount, key); err != nil {
		return err
	}
	return l.apply(ctx, userID, amount, kindGrant, key)
}

func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx, l.q(`SELECT balance FROM quota_accounts WHERE user_id = ?`), userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return l.initialGrant, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

func (l *Ledger) apply(ctx context.Context, userID string, delta int64, kind, key string) error {
	err := l.applyTx(ctx, userID, delta, kind, key)
	if err == nil || errors.Is(err, ErrInsufficientQuota) {
		return err
	}
	// a concurrent call with the same key may have won the unique constraint
	if ok, lookupErr := l.applied(ctx, key); lookupErr == nil && ok {
		logger.Debug(ctx, "ledger entry already applied", "key", key)
		return nil
	}
	return err
}

func (l *Ledger) applyTx(ctx context.Context, userID string, delta int64, kind, key string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, l.q(`SELECT kind FROM quota_entries WHERE idempotency_key = ?`), key).Scan(&existing)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("lookup idempotency key: %w", err)
	}

	now := l.now().UTC()
	if err := l.ensureAccount(ctx, tx, userID, now); err != nil {
		return err
	}

	if delta < 0 {
		res, err := tx.ExecContext(ctx,
			l.q(`UPDATE quota_accounts SET balance = balance - ?, updated_at = ? WHERE user_id = ? AND balance >= ?`),
			-delta, now, userID, -delta)
		if err != nil {
			return fmt.Errorf("debit account: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("debit account: %w", err)
		} else if n == 0 {
			return ErrInsufficientQuota
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			l.q(`UPDATE quota_accounts SET balance = balance + ?, updated_at = ? WHERE user_id = ?`),
			delta, now, userID); err != nil {
			return fmt.Errorf("credit account: %w", err)
		}
	}

	if err := l.insertEntry(ctx, tx, userID, kind, delta, key, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// ensureAccount provisions the account with the initial grant on first use
func (l *Ledger) ensureAccount(ctx context.Context, tx *sql.Tx, userID string, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		l.q(`INSERT INTO quota_accounts (user_id, balance, updated_at) VALUES (?, ?, ?) ON CONFLICT (user_id) DO NOTHING`),
		userID, l.initialGrant, now)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if created == 1 && l.initialGrant > 0 {
		return l.insertEntry(ctx, tx, userID, kindGrant, l.initialGrant, "grant:initial:"+userID, now)
	}
	return nil
}

func (l *Ledger) insertEntry(ctx context.Context, tx *sql.Tx, userID, kind string, amount int64, key string, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		l.q(`INSERT INTO quota_entries (id, user_id, kind, amount, idempotency_key, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		l.newID(), userID, kind, amount, key, now)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (l *Ledger) applied(ctx context.Context, key string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx, l.q(`SELECT 1 FROM quota_entries WHERE idempotency_key = ?`), key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
