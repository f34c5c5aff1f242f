// Package sqlite registers the SQLite ledger driver used for local
// development and single-node deployments.
//
//	import _ "github.com/studio233/batchd/data/sqlite"
package sqlite

import (
	"database/sql"

	"github.com/studio233/batchd/data"
	"github.com/studio233/batchd/data/config"

	_ "github.com/mattn/go-sqlite3"
)

func init() {
	data.RegisterDatabaseDriver(data.NewSQLDriver("sqlite3", "sqlite3", singleWriter))
}

// singleWriter serializes access; the ledger's conditional updates rely on it.
func singleWriter(db *sql.DB, cfg *config.Database) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if cfg.ConnMaxLifeTime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifeTime)
	}
}
