package billing

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockLedger(t *testing.T, driver string, grant int64) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	l := NewLedger(db, driver, grant)
	l.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	l.newID = func() string { return "qe_test" }
	return l, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestLedgerDebit(t *testing.T) {
	l, mock := newMockLedger(t, "sqlite3", 0)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT kind FROM quota_entries WHERE idempotency_key = ?")).
		WithArgs("batch:b1").
		WillReturnRows(sqlmock.NewRows([]string{"kind"}))
	mock.ExpectExec(q("INSERT INTO quota_accounts")).
		WithArgs("u1", int64(0), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("UPDATE quota_accounts SET balance = balance - ?")).
		WithArgs(int64(3), sqlmock.AnyArg(), "u1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO quota_entries")).
		WithArgs("qe_test", "u1", "debit", int64(-3), "batch:b1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := l.Debit(context.Background(), "u1", 3, "batch:b1"); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLedgerDebitInsufficient(t *testing.T) {
	l, mock := newMockLedger(t, "sqlite3", 0)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT kind FROM quota_entries")).
		WithArgs("batch:b1").
		WillReturnRows(sqlmock.NewRows([]string{"kind"}))
	mock.ExpectExec(q("INSERT INTO quota_accounts")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("UPDATE quota_accounts SET balance = balance - ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := l.Debit(context.Background(), "u1", 5, "batch:b1")
	if !errors.Is(err, ErrInsufficientQuota) {
		t.Fatalf("expected ErrInsufficientQuota, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLedgerIdempotentReplay(t *testing.T) {
	l, mock := newMockLedger(t, "sqlite3", 0)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT kind FROM quota_entries")).
		WithArgs("job:j1").
		WillReturnRows(sqlmock.NewRows([]string{"kind"}).AddRow("refund"))
	mock.ExpectRollback()

	if err := l.Refund(context.Background(), "u1", 1, "job:j1"); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLedgerInitialGrant(t *testing.T) {
	l, mock := newMockLedger(t, "postgres", 10)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT kind FROM quota_entries WHERE idempotency_key = $1")).
		WithArgs("batch:b1").
		WillReturnRows(sqlmock.NewRows([]string{"kind"}))
	mock.ExpectExec(q("INSERT INTO quota_accounts (user_id, balance, updated_at) VALUES ($1, $2, $3)")).
		WithArgs("u1", int64(10), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO quota_entries")).
		WithArgs("qe_test", "u1", "grant", int64(10), "grant:initial:u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(q("UPDATE quota_accounts SET balance = balance - $1, updated_at = $2 WHERE user_id = $3 AND balance >= $4")).
		WithArgs(int64(2), sqlmock.AnyArg(), "u1", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO quota_entries")).
		WithArgs("qe_test", "u1", "debit", int64(-2), "batch:b1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := l.Debit(context.Background(), "u1", 2, "batch:b1"); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLedgerConcurrentKeyWins(t *testing.T) {
	l, mock := newMockLedger(t, "sqlite3", 0)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT kind FROM quota_entries")).
		WillReturnRows(sqlmock.NewRows([]string{"kind"}))
	mock.ExpectExec(q("INSERT INTO quota_accounts")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("UPDATE quota_accounts SET balance = balance + ?")).
		WithArgs(int64(4), sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO quota_entries")).
		WillReturnError(errors.New("UNIQUE constraint failed: quota_entries.idempotency_key"))
	mock.ExpectRollback()
	mock.ExpectQuery(q("SELECT 1 FROM quota_entries WHERE idempotency_key = ?")).
		WithArgs("job:j9").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	if err := l.Refund(context.Background(), "u1", 4, "job:j9"); err != nil {
		t.Fatalf("expected replayed refund to succeed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLedgerBalance(t *testing.T) {
	l, mock := newMockLedger(t, "sqlite3", 7)

	mock.ExpectQuery(q("SELECT balance FROM quota_accounts WHERE user_id = ?")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(42)))
	mock.ExpectQuery(q("SELECT balance FROM quota_accounts")).
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	ctx := context.Background()
	if b, err := l.Balance(ctx, "u1"); err != nil || b != 42 {
		t.Errorf("balance u1 = %d, %v", b, err)
	}
	if b, err := l.Balance(ctx, "u2"); err != nil || b != 7 {
		t.Errorf("unknown account should report initial grant, got %d, %v", b, err)
	}
}

func TestLedgerMigrate(t *testing.T) {
	l, mock := newMockLedger(t, "sqlite3", 0)
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS quota_accounts")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS quota_entries")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("CREATE INDEX IF NOT EXISTS idx_quota_entries_user")).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := l.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLedgerValidation(t *testing.T) {
	l, _ := newMockLedger(t, "sqlite3", 0)
	if err := l.Debit(context.Background(), "u1", 0, "k"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if err := l.Grant(context.Background(), "", 1, "k"); err == nil {
		t.Error("expected error for empty user")
	}
}

func TestPlaceholderRewrite(t *testing.T) {
	l := &Ledger{postgres: true}
	got := l.q("UPDATE t SET a = ? WHERE b = ? AND c >= ?")
	if got != "UPDATE t SET a = $1 WHERE b = $2 AND c >= $3" {
		t.Errorf("got %q", got)
	}
	l.postgres = false
	if got := l.q("a = ?"); got != "a = ?" {
		t.Errorf("sqlite query rewritten: %q", got)
	}
}
