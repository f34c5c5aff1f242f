package data

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Drivers register themselves from init() in their own package, the same way
// database/sql drivers do, and are looked up by the name used in
// configuration.

// DatabaseDriver opens relational connections used by the quota ledger.
type DatabaseDriver interface {
	// Name returns the driver identifier (e.g., "postgres", "sqlite3")
	Name() string
	// Connect returns a ready *sql.DB for the given *config.Database.
	Connect(ctx context.Context, cfg any) (any, error)
	Close(conn any) error
	Ping(ctx context.Context, conn any) error
}

// CacheDriver opens the key-value store holding job records.
type CacheDriver interface {
	Name() string
	Connect(ctx context.Context, cfg any) (any, error)
	Close(conn any) error
	Ping(ctx context.Context, conn any) error
}

// MessageDriver opens broker connections for dispatch and worker events.
type MessageDriver interface {
	Name() string
	Connect(ctx context.Context, cfg any) (any, error)
	Close(conn any) error
}

type namer interface {
	Name() string
}

type registry[T namer] struct {
	kind    string
	mu      sync.RWMutex
	drivers map[string]T
}

func newRegistry[T namer](kind string) *registry[T] {
	return &registry[T]{kind: kind, drivers: make(map[string]T)}
}

func (r *registry[T]) register(driver T, isNil bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if isNil {
		panic(fmt.Sprintf("data: Register%sDriver driver is nil", r.kind))
	}

	name := driver.Name()
	if name == "" {
		panic(fmt.Sprintf("data: Register%sDriver driver name is empty", r.kind))
	}
	if _, exists := r.drivers[name]; exists {
		panic(fmt.Sprintf("data: Register%sDriver called twice for driver %s", r.kind, name))
	}
	r.drivers[name] = driver
}

func (r *registry[T]) get(name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	driver, ok := r.drivers[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf(
			"data: %s driver %q not registered\n\n"+
				"Did you forget to import the driver package?\n"+
				"    _ \"github.com/studio233/batchd/data/<driver>\"\n\n"+
				"Available drivers: %v",
			r.kind, name, r.namesLocked(),
		)
	}
	return driver, nil
}

func (r *registry[T]) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *registry[T]) namesLocked() []string {
	out := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *registry[T]) reset() {
	r.mu.Lock()
	r.drivers = make(map[string]T)
	r.mu.Unlock()
}

var (
	databaseDrivers = newRegistry[DatabaseDriver]("Database")
	cacheDrivers    = newRegistry[CacheDriver]("Cache")
	messageDrivers  = newRegistry[MessageDriver]("Message")
)

// RegisterDatabaseDriver makes a database driver available by the provided name.
// It panics if called twice with the same name or if driver is nil.
func RegisterDatabaseDriver(driver DatabaseDriver) {
	databaseDrivers.register(driver, driver == nil)
}

// RegisterCacheDriver makes a cache driver available by the provided name.
func RegisterCacheDriver(driver CacheDriver) {
	cacheDrivers.register(driver, driver == nil)
}

// RegisterMessageDriver makes a message queue driver available by the provided name.
func RegisterMessageDriver(driver MessageDriver) {
	messageDrivers.register(driver, driver == nil)
}

// GetDatabaseDriver retrieves a registered database driver by name.
func GetDatabaseDriver(name string) (DatabaseDriver, error) {
	return databaseDrivers.get(name)
}

// GetCacheDriver retrieves a registered cache driver by name.
func GetCacheDriver(name string) (CacheDriver, error) {
	return cacheDrivers.get(name)
}

// GetMessageDriver retrieves a registered message queue driver by name.
func GetMessageDriver(name string) (MessageDriver, error) {
	return messageDrivers.get(name)
}

// ListDatabaseDrivers returns the sorted names of registered database drivers.
func ListDatabaseDrivers() []string { return databaseDrivers.names() }

// ListCacheDrivers returns the sorted names of registered cache drivers.
func ListCacheDrivers() []string { return cacheDrivers.names() }

// ListMessageDrivers returns the sorted names of registered message drivers.
func ListMessageDrivers() []string { return messageDrivers.names() }
