package db

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/banshee-data/keyfob.report/internal/timeutil"
)

// PressWorker periodically scans recent frames and upserts grouped button
// presses into presses and press_frames. A remote held down for half a second
// emits dozens of identical frames across several bursts; the worker folds
// consecutive frames with the same address and key into one press whenever
// the gap between them stays under GapMS.
type PressWorker struct {
	DB *DB
	// Maximum gap in milliseconds between frames of the same press.
	GapMS        int
	ModelVersion string
	Interval     time.Duration  // how often to run (e.g., 1m)
	Window       time.Duration  // lookback window (e.g., 5m)
	Clock        timeutil.Clock // drives the loop; swap for a mock in tests
	StopChan     chan struct{}
}

func NewPressWorker(db *DB, gapMS int, modelVersion string) *PressWorker {
	return &PressWorker{
		DB:           db,
		GapMS:        gapMS,
		ModelVersion: modelVersion,
		Interval:     time.Minute,
		Window:       5 * time.Minute,
		Clock:        timeutil.RealClock{},
		StopChan:     make(chan struct{}),
	}
}

// Start runs the periodic worker loop in a goroutine.
func (w *PressWorker) Start() {
	go func() {
		ticker := w.Clock.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if err := w.RunOnce(context.Background()); err != nil {
					fmt.Printf("press worker run error: %v\n", err)
				}
			case <-w.StopChan:
				return
			}
		}
	}()
}

// Stop requests the worker to stop.
func (w *PressWorker) Stop() {
	close(w.StopChan)
}

// RunOnce scans the last w.Window (+ small overlap) and upserts presses.
func (w *PressWorker) RunOnce(ctx context.Context) error {
	now := w.Clock.Now().UTC()
	end := float64(now.Unix())
	start := float64(now.Add(-w.Window).Unix())

	return w.RunRange(ctx, start, end)
}

// RunFullHistory scans the full available frame range and upserts presses.
func (w *PressWorker) RunFullHistory(ctx context.Context) error {
	var start sql.NullFloat64
	var end sql.NullFloat64
	if err := w.DB.QueryRowContext(ctx, `SELECT MIN(received_at), MAX(received_at) FROM frames`).Scan(&start, &end); err != nil {
		return err
	}
	if !start.Valid || !end.Valid {
		log.Printf("Press worker full-history run skipped (no frames)")
		return nil
	}
	if start.Float64 > end.Float64 {
		log.Printf("Press worker full-history run skipped (invalid range): start=%v end=%v", start.Float64, end.Float64)
		return nil
	}
	return w.RunRange(ctx, start.Float64, end.Float64)
}

// RunRange scans the provided [start,end] (unix seconds as float64) and
// upserts presses.
func (w *PressWorker) RunRange(ctx context.Context, start, end float64) error {
	tx, err := w.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			// ErrTxDone means transaction was already committed/rolled back
			log.Printf("warning: failed to rollback transaction: %v", err)
		}
	}()

	// Delete overlapping presses with the same model_version before inserting.
	// This handles periodic re-runs and window overlaps, preventing duplicates.
	// We delete presses that:
	// 1. Start within the processing range, OR
	// 2. End within the processing range, OR
	// 3. Span the entire processing range
	// press_frames rows go first; the foreign key has no cascade.
	overlapCondition := `
		model_version = ?
		AND (
			(press_start_unix BETWEEN ? AND ?)
			OR (press_end_unix BETWEEN ? AND ?)
			OR (press_start_unix <= ? AND press_end_unix >= ?)
		)
	`
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM press_frames WHERE press_id IN (SELECT press_id FROM presses WHERE `+overlapCondition+`)`,
		w.ModelVersion, start, end, start, end, start, end,
	); err != nil {
		return fmt.Errorf("failed to delete overlapping press links: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM presses WHERE `+overlapCondition,
		w.ModelVersion, start, end, start, end, start, end,
	)
	if err != nil {
		return fmt.Errorf("failed to delete overlapping presses: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		log.Printf("Press worker: deleted %d overlapping %s presses in range [%v, %v]",
			deleted, w.ModelVersion, start, end)
	}

	// Query individual frames in the window
	q := `
		SELECT
			frame_id,
			received_at AS ts,
			address,
			key_code
		FROM
			frames
		WHERE
			received_at BETWEEN ? AND ?
		ORDER BY
			ts
	`

	rows, err := tx.QueryContext(ctx, q, start, end)
	if err != nil {
		return err
	}
	defer rows.Close()
	type rawFrame struct {
		FrameID int64
		Ts      float64
		Address int64
		Key     int64
	}

	var frames []rawFrame
	for rows.Next() {
		var f rawFrame
		if err := rows.Scan(&f.FrameID, &f.Ts, &f.Address, &f.Key); err != nil {
			return err
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Cluster frames into presses by exact (address, key) match and time
	// continuity. A fixed-code remote repeats its frame verbatim, so unlike
	// ambiguous sensor tracks there is no similarity scoring here.
	type press struct {
		Start   float64
		End     float64
		Address int64
		Key     int64
		Count   int64
		Frames  []rawFrame
	}

	var presses []press
	maxGap := float64(w.GapMS) / 1000.0 // seconds

	for _, f := range frames {
		// find the most recent open press for this exact button
		bestIdx := -1
		for i := range presses {
			p := &presses[i]
			if p.Address != f.Address || p.Key != f.Key {
				continue
			}
			if f.Ts-p.End > maxGap {
				continue
			}
			bestIdx = i
		}

		if bestIdx == -1 {
			// start a new press
			presses = append(presses, press{
				Start:   f.Ts,
				End:     f.Ts,
				Address: f.Address,
				Key:     f.Key,
				Count:   1,
				Frames:  []rawFrame{f},
			})
		} else {
			// extend the existing press
			p := &presses[bestIdx]
			if f.Ts < p.Start {
				p.Start = f.Ts
			}
			if f.Ts > p.End {
				p.End = f.Ts
			}
			p.Count += 1
			p.Frames = append(p.Frames, f)
		}
	}

	// Upsert presses.
	upsertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO presses (
			press_key,
			address,
			key_code,
			press_start_unix,
			press_end_unix,
			frame_count,
			gap_ms,
			model_version,
			created_at,
			updated_at
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, UNIXEPOCH('subsec'), UNIXEPOCH('subsec')
		)
		ON CONFLICT(press_key) DO UPDATE SET
			press_end_unix = excluded.press_end_unix,
			frame_count = excluded.frame_count,
			gap_ms = excluded.gap_ms,
			model_version = excluded.model_version,
			updated_at = UNIXEPOCH('subsec')
	`)
	if err != nil {
		return err
	}
	defer upsertStmt.Close()

	// generate stable press keys using SHA1(address|key|start_ms|model_version)
	// Note: we intentionally omit end time so the key doesn't change as late
	// bursts extend the press

	// Refresh links for presses in the window: delete previous links, we'll
	// insert as we go
	deleteLinks := `
		DELETE FROM press_frames
		WHERE press_id IN (
			SELECT press_id
			FROM presses
			WHERE press_start_unix BETWEEN ? AND ?
		);
	`
	if _, err := tx.ExecContext(ctx, deleteLinks, start, end); err != nil {
		return err
	}

	linkInsert, err := tx.PrepareContext(ctx, `
		INSERT INTO press_frames (
			press_id,
			frame_id,
			created_at
		) VALUES (
			?, ?, UNIXEPOCH('subsec')
		)
		ON CONFLICT(press_id, frame_id) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer linkInsert.Close()

	for _, p := range presses {
		// use integer start millisecond for stable key; presses are short
		// enough that whole seconds would collide across distinct presses
		keyRaw := fmt.Sprintf("%d|%d|%d|%s", p.Address, p.Key, int64(math.Floor(p.Start*1000)), w.ModelVersion)
		sum := sha1.Sum([]byte(keyRaw))
		pressKey := fmt.Sprintf("%x", sum)

		_, err := upsertStmt.ExecContext(ctx, pressKey, p.Address, p.Key, p.Start, p.End, p.Count, w.GapMS, w.ModelVersion)
		if err != nil {
			return err
		}

		// fetch press_id for this key (either new or existing)
		var pressID int64
		if err := tx.QueryRowContext(
			ctx,
			`
			SELECT
				press_id
			FROM
				presses
			WHERE
				press_key = ?
			`,
			pressKey,
		).Scan(&pressID); err != nil {
			return err
		}

		for _, f := range p.Frames {
			if _, err := linkInsert.ExecContext(ctx, pressID, f.FrameID); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

// MigrateModelVersion replaces all presses from oldVersion with the worker's
// current ModelVersion by deleting old presses and re-running over full history.
func (w *PressWorker) MigrateModelVersion(ctx context.Context, oldVersion string) error {
	if oldVersion == w.ModelVersion {
		return fmt.Errorf("old and new model versions must differ (both are %q)", oldVersion)
	}

	log.Printf("Press worker: migrating from %s to %s", oldVersion, w.ModelVersion)

	deleted, err := w.DB.DeleteAllPresses(ctx, oldVersion)
	if err != nil {
		return fmt.Errorf("failed to delete old version presses: %w", err)
	}

	log.Printf("Press worker: deleted %d %s presses", deleted, oldVersion)

	// Re-run over full history with new version
	return w.RunFullHistory(ctx)
}

// DeleteAllPresses removes all presses for a given model version along with
// their frame links.
func (db *DB) DeleteAllPresses(ctx context.Context, modelVersion string) (int64, error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Printf("warning: failed to rollback transaction: %v", err)
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM press_frames WHERE press_id IN (SELECT press_id FROM presses WHERE model_version = ?)`,
		modelVersion,
	); err != nil {
		return 0, fmt.Errorf("failed to delete press links: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM presses WHERE model_version = ?`,
		modelVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete presses: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

// PressOverlapStats contains statistics about overlapping presses.
type PressOverlapStats struct {
	TotalPresses       int64
	ModelVersionCounts map[string]int64
	Overlaps           []PressOverlap
}

// PressOverlap represents a pair of overlapping presses with different model versions.
type PressOverlap struct {
	ModelVersion1 string
	ModelVersion2 string
	OverlapCount  int64
}

// AnalysePressOverlaps returns statistics about overlapping presses across
// model versions. Overlaps between versions usually mean an old version's
// presses were never migrated out.
func (db *DB) AnalysePressOverlaps(ctx context.Context) (*PressOverlapStats, error) {
	stats := &PressOverlapStats{
		ModelVersionCounts: make(map[string]int64),
	}

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM presses`).Scan(&stats.TotalPresses); err != nil {
		return nil, fmt.Errorf("failed to count presses: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT model_version, COUNT(*) FROM presses GROUP BY model_version`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by model version: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mv sql.NullString
		var count int64
		if err := rows.Scan(&mv, &count); err != nil {
			return nil, err
		}
		key := "(null)"
		if mv.Valid {
			key = mv.String
		}
		stats.ModelVersionCounts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Find overlapping presses of the same button between different model versions
	overlapQuery := `
		WITH overlaps AS (
			SELECT
				p1.model_version as mv1,
				p2.model_version as mv2
			FROM presses p1
			JOIN presses p2
				ON p1.press_id < p2.press_id
				AND p1.address = p2.address
				AND p1.key_code = p2.key_code
				AND COALESCE(p1.model_version, '') != COALESCE(p2.model_version, '')
				AND (
					(p1.press_start_unix BETWEEN p2.press_start_unix AND p2.press_end_unix)
					OR (p1.press_end_unix BETWEEN p2.press_start_unix AND p2.press_end_unix)
					OR (p1.press_start_unix <= p2.press_start_unix
						AND p1.press_end_unix >= p2.press_end_unix)
				)
		)
		SELECT COALESCE(mv1, '(null)'), COALESCE(mv2, '(null)'), COUNT(*)
		FROM overlaps
		GROUP BY mv1, mv2
	`

	overlapRows, err := db.QueryContext(ctx, overlapQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to find overlaps: %w", err)
	}
	defer overlapRows.Close()

	for overlapRows.Next() {
		var o PressOverlap
		if err := overlapRows.Scan(&o.ModelVersion1, &o.ModelVersion2, &o.OverlapCount); err != nil {
			return nil, err
		}
		stats.Overlaps = append(stats.Overlaps, o)
	}
	if err := overlapRows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
