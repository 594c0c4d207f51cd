package db

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationsFS returns the migration files shipped with the binary.
func MigrationsFS() (fs.FS, error) {
	return fs.Sub(embeddedMigrations, "migrations")
}

// getMigrationsFS returns the migrations filesystem, preferring local files
// during development so new migrations can be tested without rebuilding.
func getMigrationsFS() (fs.FS, error) {
	if info, err := os.Stat("internal/db/migrations"); err == nil && info.IsDir() {
		return os.DirFS("internal/db/migrations"), nil
	}
	return MigrationsFS()
}
