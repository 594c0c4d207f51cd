package db

import (
	"os"
	"strings"
	"testing"
)

func TestNewDB_CreatesSchema(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	for _, table := range []string{
		"frames", "presses", "press_frames",
		"adapter_commands", "adapter_log", "adapter_serial_config",
	} {
		var exists bool
		err := db.QueryRow(`
			SELECT COUNT(*) > 0
			FROM sqlite_master
			WHERE type='table' AND name=?
		`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("table %s should exist after NewDB", table)
		}
	}
}

func TestNewDB_BaselinesFreshDatabase(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	var version uint
	err := db.QueryRow("SELECT version FROM schema_migrations LIMIT 1").Scan(&version)
	if err != nil {
		t.Fatalf("failed to read baseline version: %v", err)
	}

	migrationsFS, err := MigrationsFS()
	if err != nil {
		t.Fatalf("MigrationsFS failed: %v", err)
	}
	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}

	if version != latest {
		t.Errorf("expected fresh database baselined at version %d, got %d", latest, version)
	}
}

func TestOpenDB_LeavesSchemaAlone(t *testing.T) {
	fname := t.Name() + ".db"
	_ = os.Remove(fname)
	defer os.Remove(fname)

	db, err := OpenDB(fname)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count tables: %v", err)
	}
	if count != 0 {
		t.Errorf("OpenDB should not create tables, found %d", count)
	}
}

func TestRecordFrame_DerivesAddressAndKey(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	// raw 0x8BEEF1: address is the top 20 bits, key the bottom 4
	if err := db.RecordFrame(1000.5, "sess-1", "rx-front", 0x8BEEF1); err != nil {
		t.Fatalf("RecordFrame failed: %v", err)
	}

	frames, err := db.Frames(1)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}

	f := frames[0]
	if f.Raw != 0x8BEEF1 {
		t.Errorf("expected raw 0x8BEEF1, got 0x%06X", f.Raw)
	}
	if f.Address != 0x8BEEF {
		t.Errorf("expected address 0x8BEEF, got 0x%05X", f.Address)
	}
	if f.KeyCode != 0x1 {
		t.Errorf("expected key 0x1, got 0x%X", f.KeyCode)
	}
	if f.ReceivedAt != 1000.5 {
		t.Errorf("expected received_at 1000.5, got %v", f.ReceivedAt)
	}
	if f.SessionID != "sess-1" || f.ReceiverID != "rx-front" {
		t.Errorf("unexpected session/receiver: %q/%q", f.SessionID, f.ReceiverID)
	}
}

func TestFrames_NewestFirstWithLimit(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	for i, raw := range []uint32{0x111111, 0x222222, 0x333333} {
		if err := db.RecordFrame(float64(100+i), "", "", raw); err != nil {
			t.Fatalf("RecordFrame failed: %v", err)
		}
	}

	frames, err := db.Frames(2)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Raw != 0x333333 || frames[1].Raw != 0x222222 {
		t.Errorf("expected newest first, got 0x%06X, 0x%06X", frames[0].Raw, frames[1].Raw)
	}
}

func TestFramesInRange_AddressFilter(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	// two remotes interleaved
	if err := db.RecordFrame(100, "", "", 0xAAAAA1); err != nil {
		t.Fatalf("RecordFrame failed: %v", err)
	}
	if err := db.RecordFrame(200, "", "", 0xBBBBB2); err != nil {
		t.Fatalf("RecordFrame failed: %v", err)
	}
	if err := db.RecordFrame(300, "", "", 0xAAAAA4); err != nil {
		t.Fatalf("RecordFrame failed: %v", err)
	}

	frames, err := db.FramesInRange(150, 350, nil)
	if err != nil {
		t.Fatalf("FramesInRange failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames in range, got %d", len(frames))
	}
	if frames[0].ReceivedAt != 200 || frames[1].ReceivedAt != 300 {
		t.Errorf("expected oldest first, got %v then %v", frames[0].ReceivedAt, frames[1].ReceivedAt)
	}

	addr := uint32(0xAAAAA)
	frames, err = db.FramesInRange(0, 1000, &addr)
	if err != nil {
		t.Fatalf("FramesInRange with address failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames for address 0xAAAAA, got %d", len(frames))
	}
	for _, f := range frames {
		if f.Address != 0xAAAAA {
			t.Errorf("address filter leaked frame with address 0x%05X", f.Address)
		}
	}
}

func TestRecordCommandAndCommands(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	id, err := db.RecordCommand("S1", CommandSourceAPI)
	if err != nil {
		t.Fatalf("RecordCommand failed: %v", err)
	}
	if id <= 0 {
		t.Errorf("expected positive command id, got %d", id)
	}

	if _, err := db.RecordCommand("Z", CommandSourceInit); err != nil {
		t.Fatalf("RecordCommand failed: %v", err)
	}

	commands, err := db.Commands(10)
	if err != nil {
		t.Fatalf("Commands failed: %v", err)
	}
	if len(commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(commands))
	}
	// newest first
	if commands[0].Command != "Z" || commands[0].Source != CommandSourceInit {
		t.Errorf("unexpected first command: %+v", commands[0])
	}
	if commands[1].Command != "S1" || commands[1].Source != CommandSourceAPI {
		t.Errorf("unexpected second command: %+v", commands[1])
	}
	if commands[0].Timestamp.IsZero() {
		t.Error("command timestamp should be set")
	}
}

func TestRecordAdapterLogAndAdapterLog(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	if err := db.RecordAdapterLog(AdapterLogStatus, `{"streaming":true}`); err != nil {
		t.Fatalf("RecordAdapterLog failed: %v", err)
	}
	if err := db.RecordAdapterLog(AdapterLogUnknown, "garbled line"); err != nil {
		t.Fatalf("RecordAdapterLog failed: %v", err)
	}

	entries, err := db.AdapterLog(10)
	if err != nil {
		t.Fatalf("AdapterLog failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Kind != AdapterLogUnknown || entries[0].Payload != "garbled line" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Kind != AdapterLogStatus {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}

func TestPressStats_RollsUpByButton(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	// three presses of button A, one of button B
	inserts := []struct {
		key     string
		address int64
		keyCode int64
		start   float64
		end     float64
		frames  int64
	}{
		{"k1", 0xAAAAA, 1, 100, 100.5, 8},
		{"k2", 0xAAAAA, 1, 200, 201.2, 12},
		{"k3", 0xAAAAA, 1, 300, 300.3, 5},
		{"k4", 0xBBBBB, 2, 150, 150.4, 6},
	}
	for _, in := range inserts {
		_, err := db.Exec(
			`INSERT INTO presses (press_key, address, key_code, press_start_unix, press_end_unix, frame_count, gap_ms, model_version)
			 VALUES (?, ?, ?, ?, ?, ?, 400, 'v1')`,
			in.key, in.address, in.keyCode, in.start, in.end, in.frames)
		if err != nil {
			t.Fatalf("failed to insert press: %v", err)
		}
	}

	stats, err := db.PressStats(0, 1000)
	if err != nil {
		t.Fatalf("PressStats failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 stat rows, got %d", len(stats))
	}

	// most pressed button first
	a := stats[0]
	if a.Address != 0xAAAAA || a.KeyCode != 1 {
		t.Fatalf("expected button 0xAAAAA/1 first, got 0x%05X/%d", a.Address, a.KeyCode)
	}
	if a.PressCount != 3 {
		t.Errorf("expected 3 presses, got %d", a.PressCount)
	}
	if a.FrameCount != 25 {
		t.Errorf("expected 25 frames total, got %d", a.FrameCount)
	}
	if a.FirstSeen != 100 || a.LastSeen != 300.3 {
		t.Errorf("unexpected first/last seen: %v/%v", a.FirstSeen, a.LastSeen)
	}
	if a.MaxDuration < 1.19 || a.MaxDuration > 1.21 {
		t.Errorf("expected max duration ~1.2s, got %v", a.MaxDuration)
	}

	if stats[1].Address != 0xBBBBB || stats[1].PressCount != 1 {
		t.Errorf("unexpected second stat row: %+v", stats[1])
	}
}

func TestFrameActivity_Buckets(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	// two frames in the first hour, one in the third
	for _, ts := range []float64{3600, 3700, 10900} {
		if err := db.RecordFrame(ts, "", "", 0x123451); err != nil {
			t.Fatalf("RecordFrame failed: %v", err)
		}
	}

	buckets, err := db.FrameActivity(0, 20000, 3600)
	if err != nil {
		t.Fatalf("FrameActivity failed: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].BucketStart != 3600 || buckets[0].FrameCount != 2 {
		t.Errorf("unexpected first bucket: %+v", buckets[0])
	}
	if buckets[1].BucketStart != 10800 || buckets[1].FrameCount != 1 {
		t.Errorf("unexpected second bucket: %+v", buckets[1])
	}
}

func TestFrameString(t *testing.T) {
	f := Frame{ReceivedAt: 1700000000.25, ReceiverID: "rx-1", Raw: 0x8BEEF1, Address: 0x8BEEF, KeyCode: 0x1}
	s := f.String()
	for _, want := range []string{"8BEEF1", "8BEEF", "rx-1"} {
		if !strings.Contains(s, want) {
			t.Errorf("Frame.String() = %q, missing %q", s, want)
		}
	}
}

// Helper functions

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	fname := t.Name() + ".db"
	_ = os.Remove(fname)

	db, err := NewDB(fname)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	return db
}

func cleanupTestDB(t *testing.T, db *DB) {
	t.Helper()
	fname := t.Name() + ".db"
	db.Close()
	_ = os.Remove(fname)
	_ = os.Remove(fname + "-shm")
	_ = os.Remove(fname + "-wal")
}
