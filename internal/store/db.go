package store

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

const busyTimeoutMs = "5000"

// DB is the profile database. It holds the durable engine state as a
// key/value table managed by Migrate.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the SQLite file at path. The returned DB
// uses a single connection, so writes from the history store serialize
// without hitting SQLITE_BUSY.
func Open(path string) (*DB, error) {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", busyTimeoutMs)
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")

	sqlDB, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }
