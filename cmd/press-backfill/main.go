// Command press-backfill regroups historical frames into presses. The daemon
// only groups frames as they arrive, so frames ingested while press grouping
// was disabled, or re-imported from an edge log, need a manual pass.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/keyfob.report/internal/db"
)

func main() {
	dbPath := flag.String("db", "keyfob_data.db", "path to sqlite db")
	startStr := flag.String("start", "", "start time (RFC3339)")
	endStr := flag.String("end", "", "end time (RFC3339)")
	gapMS := flag.Int("gap", 400, "press gap in milliseconds")
	modelVer := flag.String("model", "manual-backfill", "model version string for presses")
	flag.Parse()

	start, end, err := parseRange(*startStr, *endStr)
	if err != nil {
		log.Fatal(err)
	}

	dbConn, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer dbConn.Close()

	worker := db.NewPressWorker(dbConn, *gapMS, *modelVer)

	// Walk the range one worker window at a time. RunRange re-derives every
	// press that overlaps its span, so an interrupted backfill can simply be
	// rerun over the same range.
	windows := 0
	for ws := start; ws.Before(end); {
		we := ws.Add(worker.Window)
		if we.After(end) {
			we = end
		}
		fmt.Printf("backfilling window %s -> %s\n", ws.Format(time.RFC3339), we.Format(time.RFC3339))
		if err := worker.RunRange(context.Background(), float64(ws.Unix()), float64(we.Unix())); err != nil {
			log.Fatalf("backfill window %s: %v", ws.Format(time.RFC3339), err)
		}
		windows++
		ws = we
	}

	fmt.Printf("backfill complete: %d windows\n", windows)
}

func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("start and end must be provided")
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is not before end %s", startStr, endStr)
	}
	return start.UTC(), end.UTC(), nil
}
