package db

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Schema changes ride golang-migrate, with the SQL files compiled into the
// binary. Every helper takes the migrations fs.FS as a parameter rather than
// capturing one at construction, so the daemon, the migrate subcommand and
// the tests can point the same connection at different migration sets.

// openMigrate wires a migrate.Migrate over this connection. The returned
// instance is never closed: closing it would close the shared *sql.DB out
// from under the rest of the process.
func (db *DB) openMigrate(migrationsFS fs.FS) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}

	drv, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("wrap sqlite connection: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return nil, fmt.Errorf("build migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// step runs one migration operation, treating "nothing to do" as success.
func (db *DB) step(migrationsFS fs.FS, op string, fn func(*migrate.Migrate) error) error {
	m, err := db.openMigrate(migrationsFS)
	if err != nil {
		return err
	}
	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MigrateUp applies every pending migration.
func (db *DB) MigrateUp(migrationsFS fs.FS) error {
	return db.step(migrationsFS, "migrate up", func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// MigrateDown rolls back the most recently applied migration.
func (db *DB) MigrateDown(migrationsFS fs.FS) error {
	return db.step(migrationsFS, "migrate down", func(m *migrate.Migrate) error {
		return m.Steps(-1)
	})
}

// MigrateTo walks the schema up or down until it sits at version.
func (db *DB) MigrateTo(migrationsFS fs.FS, version uint) error {
	return db.step(migrationsFS, fmt.Sprintf("migrate to version %d", version), func(m *migrate.Migrate) error {
		return m.Migrate(version)
	})
}

// MigrateForce stamps schema_migrations to version without running any SQL.
// This is a recovery step for dirty state, not a way to skip migrations.
func (db *DB) MigrateForce(migrationsFS fs.FS, version int) error {
	return db.step(migrationsFS, fmt.Sprintf("force version %d", version), func(m *migrate.Migrate) error {
		return m.Force(version)
	})
}

// MigrateVersion reports the applied schema version and the dirty flag. A
// database with no migration history reports version 0 with no error.
func (db *DB) MigrateVersion(migrationsFS fs.FS) (uint, bool, error) {
	m, err := db.openMigrate(migrationsFS)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// migrateLogger routes golang-migrate's progress lines through the standard
// logger with a prefix, so they interleave cleanly with daemon output.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	log.Printf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// BaselineAtVersion marks an existing database as already migrated to
// version, without running any SQL. This adopts a database whose schema
// predates the migration tooling; it refuses to touch one that already has
// migration history.
func (db *DB) BaselineAtVersion(version uint) error {
	// Same shape golang-migrate's sqlite driver creates, so later runs see
	// a table they recognise.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER NOT NULL,
			dirty INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS version_unique ON schema_migrations (version);
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&rows); err != nil {
		return fmt.Errorf("inspect schema_migrations: %w", err)
	}
	if rows > 0 {
		return fmt.Errorf("cannot baseline: migration history already present")
	}

	if _, err := db.Exec("INSERT INTO schema_migrations (version, dirty) VALUES (?, 0)", version); err != nil {
		return fmt.Errorf("record baseline version: %w", err)
	}

	log.Printf("Database baselined at version %d", version)
	return nil
}

// GetMigrationStatus summarises where the schema stands, keyed for the
// status subcommand's output.
func (db *DB) GetMigrationStatus(migrationsFS fs.FS) (map[string]any, error) {
	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		return nil, fmt.Errorf("read migration version: %w", err)
	}

	var tableExists bool
	err = db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&tableExists)
	if err != nil {
		return nil, fmt.Errorf("check schema_migrations table: %w", err)
	}

	return map[string]any{
		"current_version":          version,
		"dirty":                    dirty,
		"schema_migrations_exists": tableExists,
	}, nil
}

// GetLatestMigrationVersion scans the migration filesystem for the highest
// numbered *.up.sql file. Filenames follow 000001_name.up.sql.
func GetLatestMigrationVersion(migrationsFS fs.FS) (uint, error) {
	names, err := fs.Glob(migrationsFS, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("list migrations: %w", err)
	}

	var latest uint
	for _, name := range names {
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		if uint(v) > latest {
			latest = uint(v)
		}
	}
	if latest == 0 {
		return 0, fmt.Errorf("no migration files found")
	}
	return latest, nil
}

// CheckAndPromptMigrations compares the applied schema version against the
// migrations compiled into this binary. It returns true when the process
// should refuse to start: the schema is dirty, ahead of this binary, or
// behind with migrations pending. The pending case logs the exact commands
// to run, since the daemon never migrates on its own.
func (db *DB) CheckAndPromptMigrations(migrationsFS fs.FS) (bool, error) {
	current, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		return false, fmt.Errorf("read migration version: %w", err)
	}

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		return false, fmt.Errorf("find latest migration: %w", err)
	}

	switch {
	case dirty:
		return true, fmt.Errorf("database is in a dirty state (version %d); run '%s migrate status' to diagnose", current, binaryName)
	case current == latest:
		return false, nil
	case current > latest:
		return true, fmt.Errorf("database version (%d) is ahead of this binary's latest migration (%d)", current, latest)
	}

	log.Printf("⚠️  Database schema is behind: version %d applied, %d available.", current, latest)
	log.Printf("Apply the outstanding migrations with:")
	log.Printf("   %s migrate up", binaryName)
	log.Printf("Or inspect first with '%s migrate status'.", binaryName)

	return true, fmt.Errorf("database schema is out of date (version %d, need %d)", current, latest)
}
