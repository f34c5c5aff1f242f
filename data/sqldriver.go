package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/studio233/batchd/data/config"
)

// SQLDriver adapts a database/sql driver to DatabaseDriver. Name is the
// configuration identifier and SQLName the name the driver registered with
// database/sql; they differ for pgx.
type SQLDriver struct {
	name    string
	sqlName string
	tune    func(db *sql.DB, cfg *config.Database)
}

// NewSQLDriver returns a DatabaseDriver for sqlName. tune, when non-nil,
// replaces the default pool sizing from cfg.
func NewSQLDriver(name, sqlName string, tune func(*sql.DB, *config.Database)) *SQLDriver {
	if tune == nil {
		tune = poolFromConfig
	}
	return &SQLDriver{name: name, sqlName: sqlName, tune: tune}
}

func (d *SQLDriver) Name() string { return d.name }

// Connect opens and pings a *sql.DB for a *config.Database.
func (d *SQLDriver) Connect(ctx context.Context, cfg any) (any, error) {
	dbCfg, ok := cfg.(*config.Database)
	if !ok {
		return nil, fmt.Errorf("%s: expected *config.Database, got %T", d.name, cfg)
	}
	if dbCfg.Source == "" {
		return nil, fmt.Errorf("%s: connection source is empty", d.name)
	}

	db, err := sql.Open(d.sqlName, dbCfg.Source)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.name, err)
	}
	d.tune(db, dbCfg)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.name, err)
	}
	return db, nil
}

func (d *SQLDriver) Close(conn any) error {
	db, err := d.db(conn)
	if err != nil {
		return err
	}
	return db.Close()
}

func (d *SQLDriver) Ping(ctx context.Context, conn any) error {
	db, err := d.db(conn)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (d *SQLDriver) db(conn any) (*sql.DB, error) {
	db, ok := conn.(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("%s: expected *sql.DB, got %T", d.name, conn)
	}
	return db, nil
}

func poolFromConfig(db *sql.DB, cfg *config.Database) {
	if cfg.MaxIdleConn > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifeTime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifeTime)
	}
}
