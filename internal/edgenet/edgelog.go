package edgenet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/keyfob.report/internal/capture"
	"github.com/banshee-data/keyfob.report/internal/edgemux"
	"github.com/banshee-data/keyfob.report/internal/units"
)

// ParseEdgeLog reads adapter edge records from r, one `E,R,<ticks>` line per
// record. Blank lines and `#` comments are skipped, so capture files can
// carry their provenance inline.
func ParseEdgeLog(r io.Reader) ([]capture.Record, error) {
	var records []capture.Record
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := edgemux.ParseEdgeLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadEdgeLogFile reads an .edgelog capture file.
func ReadEdgeLogFile(path string) ([]capture.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open edge log %s: %w", path, err)
	}
	defer f.Close()

	records, err := ParseEdgeLog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// maxReplayIdle caps the silence reproduced between records. Pulse widths
// inside a burst are far below the cap and replay faithfully; a saturated
// lead-in counter would otherwise stall a paced replay for half an hour.
// One second keeps distinct presses apart under any sane press-gap setting.
const maxReplayIdle = time.Second

// ReplayRecords offers records to the sink, pacing each record by its tick
// delta at the given counter rate divided by speed. Speed 0 disables pacing
// and replays as fast as the sink accepts.
func ReplayRecords(ctx context.Context, records []capture.Record, sink RecordSink, tickRateHz uint32, speed float64) error {
	interval := units.TickInterval(tickRateHz)
	for _, rec := range records {
		if speed > 0 && interval > 0 && rec.Ticks > 0 {
			delay := time.Duration(float64(units.TicksToDuration(uint64(rec.Ticks), interval)) / speed)
			if delay > maxReplayIdle {
				delay = maxReplayIdle
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		sink.Offer(rec)
	}
	return nil
}
