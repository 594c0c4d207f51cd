package db

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// schemaSignature maps table name to a sorted list of "column TYPE" entries.
// sqlite internal tables and schema_migrations are excluded so that the
// comparison reflects application schema only.
type schemaSignature map[string][]string

// DetectSchemaVersion compares the database's current schema against the
// schema produced by each migration version and returns the best match.
// matchScore is a percentage (100 = identical), differences describes what
// deviates from the best-matching version.
func (db *DB) DetectSchemaVersion(migrationsFS fs.FS) (version uint, matchScore int, differences []string, err error) {
	current, err := extractSchemaSignature(db.DB)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("failed to read current schema: %w", err)
	}

	latestVersion, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		return 0, 0, nil, err
	}

	bestScore := -1
	var bestVersion uint
	var bestDiffs []string

	for v := uint(1); v <= latestVersion; v++ {
		candidate, err := signatureAtVersion(migrationsFS, v)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("failed to build schema for version %d: %w", v, err)
		}

		score, diffs := compareSignatures(current, candidate)
		// Prefer later versions on ties so fully-migrated legacy databases
		// baseline at the highest matching version.
		if score >= bestScore {
			bestScore = score
			bestVersion = v
			bestDiffs = diffs
		}
	}

	if bestScore < 0 {
		return 0, 0, nil, fmt.Errorf("no migration versions available for comparison")
	}

	return bestVersion, bestScore, bestDiffs, nil
}

// signatureAtVersion applies migrations 1..version to a scratch in-memory
// database and extracts the resulting schema signature.
func signatureAtVersion(migrationsFS fs.FS, version uint) (schemaSignature, error) {
	mem, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	defer mem.Close()

	// In-memory sqlite databases are per-connection; pinning the pool to a
	// single connection keeps the migrations and the signature query on the
	// same database.
	mem.SetMaxOpenConns(1)

	scratch := &DB{DB: mem}
	if err := scratch.MigrateTo(migrationsFS, version); err != nil {
		return nil, err
	}

	return extractSchemaSignature(mem)
}

// extractSchemaSignature reads table and column definitions from sqlite_master.
func extractSchemaSignature(db *sql.DB) (schemaSignature, error) {
	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type='table'
		  AND name NOT LIKE 'sqlite_%'
		  AND name != 'schema_migrations'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sig := make(schemaSignature, len(tables))
	for _, table := range tables {
		columns, err := tableColumns(db, table)
		if err != nil {
			return nil, fmt.Errorf("failed to read columns for %s: %w", table, err)
		}
		sig[table] = columns
	}

	return sig, nil
}

// tableColumns returns sorted "name TYPE" entries for a table.
func tableColumns(db *sql.DB, table string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, name+" "+strings.ToUpper(colType))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Strings(columns)
	return columns, nil
}

// compareSignatures scores how closely the current schema matches an expected
// one. Every table and every column counts one point; the score is the
// percentage of points matched. differences lists the mismatches relative to
// the expected signature.
func compareSignatures(current, expected schemaSignature) (int, []string) {
	tableSet := make(map[string]bool)
	for name := range current {
		tableSet[name] = true
	}
	for name := range expected {
		tableSet[name] = true
	}

	var tables []string
	for name := range tableSet {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	total := 0
	matched := 0
	var differences []string

	for _, table := range tables {
		currentCols, inCurrent := current[table]
		expectedCols, inExpected := expected[table]

		total++
		switch {
		case inCurrent && inExpected:
			matched++
			colTotal, colMatched, colDiffs := compareColumns(table, currentCols, expectedCols)
			total += colTotal
			matched += colMatched
			differences = append(differences, colDiffs...)

		case inExpected:
			total += len(expectedCols)
			differences = append(differences, fmt.Sprintf("missing table: %s", table))

		default:
			total += len(currentCols)
			differences = append(differences, fmt.Sprintf("unexpected table: %s", table))
		}
	}

	if total == 0 {
		return 100, nil
	}

	return matched * 100 / total, differences
}

// compareColumns compares column sets for a single table.
func compareColumns(table string, current, expected []string) (total, matched int, differences []string) {
	currentSet := make(map[string]bool, len(current))
	for _, col := range current {
		currentSet[col] = true
	}
	expectedSet := make(map[string]bool, len(expected))
	for _, col := range expected {
		expectedSet[col] = true
	}

	colSet := make(map[string]bool)
	for col := range currentSet {
		colSet[col] = true
	}
	for col := range expectedSet {
		colSet[col] = true
	}

	var cols []string
	for col := range colSet {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	for _, col := range cols {
		total++
		switch {
		case currentSet[col] && expectedSet[col]:
			matched++
		case expectedSet[col]:
			differences = append(differences, fmt.Sprintf("table %s: missing column: %s", table, col))
		default:
			differences = append(differences, fmt.Sprintf("table %s: unexpected column: %s", table, col))
		}
	}

	return total, matched, differences
}
