package data

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/studio233/batchd/data/config"
)

func TestSQLDriverConnect(t *testing.T) {
	mockDB, mock, err := sqlmock.NewWithDSN("sqldriver-connect")
	if err != nil {
		t.Fatal(err)
	}
	defer mockDB.Close()

	tuned := false
	drv := NewSQLDriver("mockdb", "sqlmock", func(db *sql.DB, cfg *config.Database) {
		tuned = true
		poolFromConfig(db, cfg)
	})
	ctx := context.Background()

	conn, err := drv.Connect(ctx, &config.Database{Source: "sqldriver-connect", MaxOpenConn: 2})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !tuned {
		t.Error("tune was not applied")
	}
	if err := drv.Ping(ctx, conn); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if got := conn.(*sql.DB).Stats().MaxOpenConnections; got != 2 {
		t.Errorf("max open = %d, want 2", got)
	}
	mock.ExpectClose()
	if err := drv.Close(conn); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSQLDriverRejectsBadInput(t *testing.T) {
	drv := NewSQLDriver("mockdb", "sqlmock", nil)
	ctx := context.Background()

	if _, err := drv.Connect(ctx, "dsn"); err == nil || !strings.Contains(err.Error(), "*config.Database") {
		t.Errorf("wrong config type: err = %v", err)
	}
	if _, err := drv.Connect(ctx, &config.Database{}); err == nil {
		t.Error("empty source should fail")
	}
	if err := drv.Close("conn"); err == nil {
		t.Error("Close should reject non *sql.DB")
	}
}
