package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/simchat/internal/store/migrations"
)

// SchemaVersion reports the schema before and after Migrate.
type SchemaVersion struct {
	From uint
	To   uint
}

// Changed reports whether Migrate applied anything.
func (v SchemaVersion) Changed() bool { return v.From != v.To }

// Migrate brings the schema up to date. A fresh database starts at
// version 0.
func (db *DB) Migrate() (SchemaVersion, error) {
	var v SchemaVersion

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return v, fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return v, fmt.Errorf("migrate %s: %w", db.path, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return v, fmt.Errorf("migrate %s: %w", db.path, err)
	}

	v.From, err = schemaVersion(m)
	if err != nil {
		return v, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return v, fmt.Errorf("migrate %s: %w", db.path, err)
	}
	v.To, err = schemaVersion(m)
	return v, err
}

func schemaVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
