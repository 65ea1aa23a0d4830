package db

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/banshee-data/ph.report/internal/monitoring"
)

// migrator wraps a migrate instance over this database and the migrations
// directory. Instances are not closed after use: closing would take the
// shared *sql.DB connection down with them.
func (db *DB) migrator(dir string) (*migrate.Migrate, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations directory: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap database for migration: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+abs, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = migrateLog{}
	return m, nil
}

// MigrateUp applies every pending migration. Already being at the latest
// version is not an error.
func (db *DB) MigrateUp(dir string) error {
	m, err := db.migrator(dir)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(dir string) error {
	m, err := db.migrator(dir)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateVersion reports the applied migration version and whether the last
// run left the schema dirty. A database with no applied migrations reports
// version zero.
func (db *DB) MigrateVersion(dir string) (uint, bool, error) {
	m, err := db.migrator(dir)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// MigrateForce overwrites the recorded version without running any
// migrations. Recovery tool for a dirty state; not for normal use.
func (db *DB) MigrateForce(dir string, version int) error {
	m, err := db.migrator(dir)
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return fmt.Errorf("force to version %d failed: %w", version, err)
	}
	return nil
}

type migrateLog struct{}

func (migrateLog) Printf(format string, v ...interface{}) {
	monitoring.Logf("migrate: "+format, v...)
}

func (migrateLog) Verbose() bool { return false }
