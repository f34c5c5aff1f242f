package data

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/studio233/batchd/data/config"
	"github.com/studio233/batchd/data/messaging/memory"
)

func TestNewMemoryOnly(t *testing.T) {
	d, cleanup, err := New(context.Background(), &config.Config{
		Messaging: &config.Messaging{Provider: config.ProviderMemory},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()

	if d.DB != nil || d.Redis != nil {
		t.Error("expected no database or redis connection")
	}
	if _, ok := d.Broker.(*memory.Broker); !ok {
		t.Errorf("broker = %T, want *memory.Broker", d.Broker)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, _, err := New(context.Background(), &config.Config{
		Messaging: &config.Messaging{Provider: "carrier-pigeon"},
	})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewUnregisteredDatabaseDriver(t *testing.T) {
	databaseDrivers.reset()
	_, _, err := New(context.Background(), &config.Config{
		Database: &config.Database{Driver: "postgres", Source: "postgres://x"},
	})
	if err == nil {
		t.Fatal("expected error for unregistered driver")
	}
}

func TestHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	mock.ExpectPing()

	d := &Data{DB: db}
	h := d.Health(context.Background())
	if h["status"] != StatusUp {
		t.Fatalf("status = %v, want up", h["status"])
	}
	services := h["services"].(map[string]any)
	if services["redis"].(map[string]any)["status"] != StatusDisabled {
		t.Errorf("redis should be disabled: %v", services["redis"])
	}
	if services["database"].(map[string]any)["status"] != StatusUp {
		t.Errorf("database should be up: %v", services["database"])
	}
	_ = d.Close()
}
