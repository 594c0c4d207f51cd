package db

import (
	"bufio"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
)

// binaryName as invoked in operator-facing hints.
const binaryName = "keyfob-report"

// RunMigrateCommand dispatches the daemon's 'migrate' subcommand. The
// database opens without the usual schema ensure: migrations own the schema
// here, and auto-creating tables would fight the very state this tool
// inspects.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load embedded migrations: %v", err)
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", dbPath, err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		log.Printf("Running migrations...")
		if err := database.MigrateUp(migrationsFS); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("✓ All migrations applied")
		logSchemaVersion(database, migrationsFS)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := database.MigrateDown(migrationsFS); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("✓ Rolled back one migration")
		logSchemaVersion(database, migrationsFS)

	case "status":
		migrateStatus(database, migrationsFS)

	case "detect":
		migrateDetect(database, migrationsFS)

	case "version":
		arg := versionArg(args, "version")
		target, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			log.Fatalf("Invalid version number: %s", arg)
		}
		log.Printf("Migrating to version %d...", target)
		if err := database.MigrateTo(migrationsFS, uint(target)); err != nil {
			log.Fatalf("Migration to version %d failed: %v", target, err)
		}
		log.Printf("✓ Now at version %d", target)

	case "force":
		arg := versionArg(args, "force")
		// Atoi, not ParseUint: force -1 clears the version entirely.
		target, err := strconv.Atoi(arg)
		if err != nil {
			log.Fatalf("Invalid version number: %s", arg)
		}
		if !confirmForce(target) {
			log.Println("Aborted")
			return
		}
		if err := database.MigrateForce(migrationsFS, target); err != nil {
			log.Fatalf("Force failed: %v", err)
		}
		log.Printf("✓ Migration version forced to %d", target)

	case "baseline":
		arg := versionArg(args, "baseline")
		target, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			log.Fatalf("Invalid version number: %s", arg)
		}
		log.Printf("Baselining database at version %d...", target)
		if err := database.BaselineAtVersion(uint(target)); err != nil {
			log.Fatalf("Baseline failed: %v", err)
		}
		log.Printf("✓ Database baselined at version %d", target)

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

// versionArg returns the <version_number> argument or exits with a usage line.
func versionArg(args []string, cmd string) string {
	if len(args) < 2 {
		log.Fatalf("Usage: %s migrate %s <version_number>", binaryName, cmd)
	}
	return args[1]
}

func logSchemaVersion(database *DB, migrationsFS fs.FS) {
	version, dirty, _ := database.MigrateVersion(migrationsFS)
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

// confirmForce asks before rewriting schema_migrations. Forcing is a
// recovery step for dirty state, not a routine operation.
func confirmForce(version int) bool {
	fmt.Printf("⚠️  Forcing migration version to %d\n", version)
	fmt.Println("Only do this to recover from a dirty migration state.")
	fmt.Print("Continue? [y/N]: ")

	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y"
}

func migrateStatus(database *DB, migrationsFS fs.FS) {
	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read migration state: %v", err)
	}
	status, err := database.GetMigrationStatus(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read migration state: %v", err)
	}

	fmt.Println("=== Migration Status ===")
	fmt.Printf("Current version: %d\n", version)
	fmt.Printf("Dirty: %v\n", dirty)
	fmt.Printf("Schema migrations table exists: %v\n", status["schema_migrations_exists"])

	if dirty {
		fmt.Println()
		fmt.Println("⚠️  A migration failed mid-run. Inspect the database, repair the")
		fmt.Printf("damage, then clear the flag with '%s migrate force <version>'.\n", binaryName)
	}
}

// migrateDetect reports where a database stands. Databases that predate the
// migration tooling carry no schema_migrations table, so their version is
// inferred by comparing the live schema against every migration point.
func migrateDetect(database *DB, migrationsFS fs.FS) {
	var hasMigrations bool
	err := database.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&hasMigrations)
	if err != nil {
		log.Fatalf("Failed to check for schema_migrations table: %v", err)
	}

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read embedded migrations: %v", err)
	}

	if hasMigrations {
		version, dirty, err := database.MigrateVersion(migrationsFS)
		if err != nil {
			log.Fatalf("Failed to get migration version: %v", err)
		}

		fmt.Println("=== Schema Migration Status ===")
		fmt.Printf("Current version: %d\n", version)
		fmt.Printf("Latest available: %d\n", latest)
		fmt.Printf("Dirty state: %v\n", dirty)
		fmt.Println()

		switch {
		case dirty:
			fmt.Println("⚠️  Database is in a dirty state. Recovery needed.")
		case version < latest:
			fmt.Printf("⚠️  Database is %d version(s) behind. Run '%s migrate up' to update.\n",
				latest-version, binaryName)
		default:
			fmt.Println("✓ Database is up to date!")
		}
		return
	}

	fmt.Println("No schema_migrations table found - running automatic detection...")
	fmt.Println()

	detected, score, differences, err := database.DetectSchemaVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Schema detection failed: %v", err)
	}

	fmt.Println("=== Schema Detection Results ===")
	fmt.Printf("Best match: version %d\n", detected)
	fmt.Printf("Similarity: %d%%\n", score)
	fmt.Printf("Latest available: %d\n", latest)
	fmt.Println()

	if score == 100 {
		fmt.Println("✓ Exact match.")
		fmt.Printf("Baseline with '%s migrate baseline %d'", binaryName, detected)
		if detected < latest {
			fmt.Printf(", then '%s migrate up'", binaryName)
		}
		fmt.Println()
		return
	}

	fmt.Printf("⚠️  No exact match (best: %d%%). Differences:\n", score)
	for _, diff := range differences {
		fmt.Printf("  %s\n", diff)
	}
	fmt.Println()
	fmt.Printf("Baseline at the closest version with '%s migrate baseline %d',\n", binaryName, detected)
	fmt.Println("or adjust the schema by hand before baselining.")
}

// PrintMigrateHelp displays the help message for the migrate command
func PrintMigrateHelp() {
	fmt.Println("Database Migration Commands")
	fmt.Println()
	fmt.Printf("Usage: %s migrate [--db=<path>] <command>\n", binaryName)
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              Apply all pending migrations")
	fmt.Println("  down            Rollback one migration")
	fmt.Println("  status          Show current migration status and version")
	fmt.Println("  detect          Detect schema version (for databases without schema_migrations)")
	fmt.Println("  version <N>     Migrate to specific version N")
	fmt.Println("  force <N>       Force migration version to N (recovery only)")
	fmt.Println("  baseline <N>    Set migration version to N without running migrations")
	fmt.Println("  help            Show this help message")
	fmt.Println()
	fmt.Println("The --db override defaults to keyfob_data.db, matching the daemon's -db flag.")
	fmt.Println()
	fmt.Println("Typical legacy database upgrade:")
	fmt.Printf("  1. %s migrate detect        # infer the schema version\n", binaryName)
	fmt.Printf("  2. %s migrate baseline <N>  # record it without running anything\n", binaryName)
	fmt.Printf("  3. %s migrate up            # apply what remains\n", binaryName)
	fmt.Println()
	fmt.Println("For more information, see:")
	fmt.Println("  - internal/db/migrations/README.md")
}
