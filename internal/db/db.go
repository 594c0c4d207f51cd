package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/keyfob.report/internal/ev1527"
)

type DB struct {
	*sql.DB
}

// OpenDB opens the sqlite database at path without touching the schema.
// Used by the migrate CLI, which wants migrations to own the schema.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL keeps the press worker's transactions from blocking frame writes.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{db}, nil
}

// NewDB opens the database and ensures the current schema exists. A fresh
// database is baselined at the latest migration version so the migrate CLI
// agrees with what NewDB created; existing databases are left alone for
// CheckAndPromptMigrations to inspect.
func NewDB(path string) (*DB, error) {
	return NewDBWithMigrationCheck(path, false)
}

// NewDBWithMigrationCheck opens the database like NewDB. With checkMigrations
// set, an existing database whose schema_migrations version lags the embedded
// migrations refuses to open, before the current schema is ensured, so the
// operator runs the migrate CLI instead of the daemon papering over it.
func NewDBWithMigrationCheck(path string, checkMigrations bool) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	fresh, err := db.isFresh()
	if err != nil {
		db.Close()
		return nil, err
	}

	if !fresh && checkMigrations {
		migrationsFS, err := getMigrationsFS()
		if err != nil {
			db.Close()
			return nil, err
		}
		if _, err := db.CheckAndPromptMigrations(migrationsFS); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := db.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	if fresh {
		if err := db.baselineFreshDB(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// ensureSchema creates the current schema. Everything is IF NOT EXISTS so the
// call is idempotent and pending migrations stay applicable afterwards.
func (db *DB) ensureSchema() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS frames (
			frame_id          INTEGER PRIMARY KEY AUTOINCREMENT,
			received_at       DOUBLE NOT NULL,
			session_id        TEXT,
			receiver_id       TEXT,
			raw               INTEGER NOT NULL,
			address           INTEGER NOT NULL,
			key_code          INTEGER NOT NULL,
			write_timestamp   DOUBLE DEFAULT (UNIXEPOCH('subsec'))
		);
		CREATE INDEX IF NOT EXISTS idx_frames_received_at ON frames(received_at);
		CREATE INDEX IF NOT EXISTS idx_frames_address ON frames(address, key_code);
		CREATE TABLE IF NOT EXISTS presses (
			press_id          INTEGER PRIMARY KEY AUTOINCREMENT,
			press_key         TEXT NOT NULL UNIQUE,
			address           INTEGER NOT NULL,
			key_code          INTEGER NOT NULL,
			press_start_unix  DOUBLE NOT NULL,
			press_end_unix    DOUBLE NOT NULL,
			frame_count       BIGINT NOT NULL,
			gap_ms            BIGINT NOT NULL,
			model_version     TEXT,
			created_at        DOUBLE,
			updated_at        DOUBLE
		);
		CREATE INDEX IF NOT EXISTS idx_presses_start ON presses(press_start_unix);
		CREATE TABLE IF NOT EXISTS press_frames (
			press_id          BIGINT NOT NULL,
			frame_id          BIGINT NOT NULL,
			created_at        DOUBLE,
			UNIQUE(press_id, frame_id),
			FOREIGN KEY(press_id) REFERENCES presses(press_id)
		);
		CREATE TABLE IF NOT EXISTS adapter_commands (
			command_id        INTEGER PRIMARY KEY AUTOINCREMENT,
			command           TEXT,
			source            TEXT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS adapter_log (
			log_id            INTEGER PRIMARY KEY AUTOINCREMENT,
			kind              TEXT,
			payload           TEXT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS adapter_serial_config (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			name              TEXT NOT NULL UNIQUE,
			port_path         TEXT NOT NULL,
			baud_rate         INTEGER NOT NULL DEFAULT 115200,
			data_bits         INTEGER NOT NULL DEFAULT 8,
			stop_bits         INTEGER NOT NULL DEFAULT 1,
			parity            TEXT NOT NULL DEFAULT 'N',
			tick_rate_hz      INTEGER NOT NULL DEFAULT 2000000,
			enabled           INTEGER NOT NULL DEFAULT 0,
			description       TEXT DEFAULT '',
			receiver_model    TEXT NOT NULL DEFAULT 'syn480r' CHECK (receiver_model IN ('syn480r', 'rx480e', 'srx882')),
			created_at        INTEGER DEFAULT (UNIXEPOCH()),
			updated_at        INTEGER DEFAULT (UNIXEPOCH())
		);
		INSERT OR IGNORE INTO adapter_serial_config (name, port_path, baud_rate, data_bits, stop_bits, parity, tick_rate_hz, enabled, description, receiver_model)
			VALUES ('Default adapter', '/dev/ttyACM0', 115200, 8, 1, 'N', 2000000, 1, 'Onboard capture adapter', 'syn480r');
	`)
	return err
}

// isFresh reports whether the database has no tables yet.
func (db *DB) isFresh() (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// baselineFreshDB marks a just-created database as already at the latest
// migration version, since NewDB created the current schema directly.
func (db *DB) baselineFreshDB() error {
	migrationsFS, err := MigrationsFS()
	if err != nil {
		return err
	}
	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		return err
	}
	return db.BaselineAtVersion(latest)
}

// Frame is a decoded transmission as stored in the frames table.
type Frame struct {
	FrameID    int64   `json:"frame_id"`
	ReceivedAt float64 `json:"received_at"`
	SessionID  string  `json:"session_id"`
	ReceiverID string  `json:"receiver_id"`
	Raw        uint32  `json:"raw"`
	Address    uint32  `json:"address"`
	KeyCode    uint8   `json:"key_code"`
}

func (f *Frame) String() string {
	return fmt.Sprintf("ReceivedAt: %f, Receiver: %s, Raw: %06X, Address: %05X, KeyCode: %X",
		f.ReceivedAt, f.ReceiverID, f.Raw, f.Address, f.KeyCode)
}

// RecordFrame stores one decoded frame. The address/key split is derived
// from the raw code so rows can never disagree with the decode rule.
func (db *DB) RecordFrame(receivedAt float64, sessionID, receiverID string, raw uint32) error {
	frame := ev1527.Frame{Raw: raw}
	_, err := db.Exec(
		`INSERT INTO frames (received_at, session_id, receiver_id, raw, address, key_code)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		receivedAt, sessionID, receiverID, raw, frame.Address(), frame.Key(),
	)
	if err != nil {
		return err
	}
	return nil
}

// Frames returns the most recent frames, newest first.
func (db *DB) Frames(limit int) ([]Frame, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT frame_id, received_at, COALESCE(session_id, ''), COALESCE(receiver_id, ''), raw, address, key_code
		 FROM frames ORDER BY received_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var f Frame
		if err := rows.Scan(&f.FrameID, &f.ReceivedAt, &f.SessionID, &f.ReceiverID, &f.Raw, &f.Address, &f.KeyCode); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return frames, nil
}

// FramesInRange returns frames with received_at in [start, end], oldest
// first. A non-nil address restricts the result to one remote.
func (db *DB) FramesInRange(start, end float64, address *uint32) ([]Frame, error) {
	q := `SELECT frame_id, received_at, COALESCE(session_id, ''), COALESCE(receiver_id, ''), raw, address, key_code
	      FROM frames WHERE received_at BETWEEN ? AND ?`
	args := []any{start, end}
	if address != nil {
		q += ` AND address = ?`
		args = append(args, *address)
	}
	q += ` ORDER BY received_at ASC`

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var f Frame
		if err := rows.Scan(&f.FrameID, &f.ReceivedAt, &f.SessionID, &f.ReceiverID, &f.Raw, &f.Address, &f.KeyCode); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return frames, nil
}

// Press is a group of repeated frames treated as one button press.
type Press struct {
	PressID      int64   `json:"press_id"`
	PressKey     string  `json:"press_key"`
	Address      uint32  `json:"address"`
	KeyCode      uint8   `json:"key_code"`
	StartUnix    float64 `json:"press_start_unix"`
	EndUnix      float64 `json:"press_end_unix"`
	FrameCount   int64   `json:"frame_count"`
	GapMS        int64   `json:"gap_ms"`
	ModelVersion string  `json:"model_version"`
}

// Presses returns presses whose start falls in [start, end], newest first.
func (db *DB) Presses(start, end float64) ([]Press, error) {
	rows, err := db.Query(
		`SELECT press_id, press_key, address, key_code, press_start_unix, press_end_unix,
		        frame_count, gap_ms, COALESCE(model_version, '')
		 FROM presses WHERE press_start_unix BETWEEN ? AND ?
		 ORDER BY press_start_unix DESC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presses []Press
	for rows.Next() {
		var p Press
		if err := rows.Scan(&p.PressID, &p.PressKey, &p.Address, &p.KeyCode, &p.StartUnix, &p.EndUnix,
			&p.FrameCount, &p.GapMS, &p.ModelVersion); err != nil {
			return nil, err
		}
		presses = append(presses, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return presses, nil
}

// PressFrames returns the frames linked to a press, oldest first.
func (db *DB) PressFrames(pressID int64) ([]Frame, error) {
	rows, err := db.Query(
		`SELECT f.frame_id, f.received_at, COALESCE(f.session_id, ''), COALESCE(f.receiver_id, ''), f.raw, f.address, f.key_code
		 FROM press_frames pf
		 JOIN frames f ON f.frame_id = pf.frame_id
		 WHERE pf.press_id = ?
		 ORDER BY f.received_at ASC`, pressID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var f Frame
		if err := rows.Scan(&f.FrameID, &f.ReceivedAt, &f.SessionID, &f.ReceiverID, &f.Raw, &f.Address, &f.KeyCode); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return frames, nil
}

// PressStat is a per-remote-button rollup over a time window.
type PressStat struct {
	Address     uint32  `json:"address"`
	KeyCode     uint8   `json:"key_code"`
	PressCount  int64   `json:"press_count"`
	FrameCount  int64   `json:"frame_count"`
	FirstSeen   float64 `json:"first_seen"`
	LastSeen    float64 `json:"last_seen"`
	MaxDuration float64 `json:"max_duration_s"`
}

// PressStats rolls presses up by (address, key_code) over [start, end].
func (db *DB) PressStats(start, end float64) ([]PressStat, error) {
	rows, err := db.Query(
		`SELECT address, key_code, COUNT(*), SUM(frame_count),
		        MIN(press_start_unix), MAX(press_end_unix),
		        MAX(press_end_unix - press_start_unix)
		 FROM presses WHERE press_start_unix BETWEEN ? AND ?
		 GROUP BY address, key_code
		 ORDER BY COUNT(*) DESC, address ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []PressStat
	for rows.Next() {
		var s PressStat
		if err := rows.Scan(&s.Address, &s.KeyCode, &s.PressCount, &s.FrameCount,
			&s.FirstSeen, &s.LastSeen, &s.MaxDuration); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// ActivityBucket is a frame count within one histogram bucket.
type ActivityBucket struct {
	BucketStart float64 `json:"bucket_start"`
	FrameCount  int64   `json:"frame_count"`
}

// FrameActivity buckets frame arrivals into bucketSeconds-wide bins over
// [start, end] for the activity chart.
func (db *DB) FrameActivity(start, end float64, bucketSeconds int64) ([]ActivityBucket, error) {
	if bucketSeconds <= 0 {
		bucketSeconds = 3600
	}
	rows, err := db.Query(
		`SELECT CAST(received_at / ? AS INTEGER) * ? AS bucket_start, COUNT(*)
		 FROM frames WHERE received_at BETWEEN ? AND ?
		 GROUP BY bucket_start ORDER BY bucket_start ASC`,
		bucketSeconds, bucketSeconds, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []ActivityBucket
	for rows.Next() {
		var b ActivityBucket
		if err := rows.Scan(&b.BucketStart, &b.FrameCount); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return buckets, nil
}

// Command source tags for the adapter command audit trail.
const (
	CommandSourceAPI   = "api"
	CommandSourceAdmin = "admin"
	CommandSourceInit  = "init"
)

// RecordCommand appends a command sent to the adapter to the audit trail.
func (db *DB) RecordCommand(command, source string) (int64, error) {
	result, err := db.Exec(
		`INSERT INTO adapter_commands (command, source) VALUES (?, ?)`,
		command, source)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Command is one entry in the adapter command audit trail.
type Command struct {
	CommandID int64     `json:"command_id"`
	Command   string    `json:"command"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Commands returns the most recent adapter commands, newest first.
func (db *DB) Commands(limit int) ([]Command, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT command_id, COALESCE(command, ''), COALESCE(source, ''), UNIXEPOCH(timestamp)
		 FROM adapter_commands ORDER BY command_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []Command
	for rows.Next() {
		var c Command
		var ts int64
		if err := rows.Scan(&c.CommandID, &c.Command, &c.Source, &ts); err != nil {
			return nil, err
		}
		c.Timestamp = time.Unix(ts, 0)
		commands = append(commands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return commands, nil
}

// Adapter log kinds.
const (
	AdapterLogStatus  = "status"
	AdapterLogUnknown = "unknown"
)

// RecordAdapterLog stores a non-edge line received from the adapter.
func (db *DB) RecordAdapterLog(kind, payload string) error {
	_, err := db.Exec(
		`INSERT INTO adapter_log (kind, payload) VALUES (?, ?)`,
		kind, payload)
	if err != nil {
		return err
	}
	return nil
}

// AdapterLogEntry is one stored adapter line.
type AdapterLogEntry struct {
	LogID     int64     `json:"log_id"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// AdapterLog returns the most recent adapter log entries, newest first.
func (db *DB) AdapterLog(limit int) ([]AdapterLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT log_id, COALESCE(kind, ''), COALESCE(payload, ''), UNIXEPOCH(timestamp)
		 FROM adapter_log ORDER BY log_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AdapterLogEntry
	for rows.Next() {
		var e AdapterLogEntry
		var ts int64
		if err := rows.Scan(&e.LogID, &e.Kind, &e.Payload, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://keyfob.db", db.DB, &tailsql.DBOptions{
		Label: "Keyfob DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		// Send the backup file to the client
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := gzipWriter.Write([]byte{}); err != nil {
			// Need to write something to initialize the gzip header
			http.Error(w, fmt.Sprintf("Failed to initialize gzip writer: %v", err), http.StatusInternalServerError)
			return
		}

		// Copy the backup file content to the gzip writer
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
