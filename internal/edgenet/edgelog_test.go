package edgenet

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/keyfob.report/internal/capture"
	"github.com/banshee-data/keyfob.report/internal/ev1527"
	"github.com/banshee-data/keyfob.report/internal/units"
)

func TestParseEdgeLog(t *testing.T) {
	input := `# captured 2025-11-03 from rx-1
# tick rate 2MHz

E,R,20000
E,F,640

# trailing note
E,R,320
`

	records, err := ParseEdgeLog(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseEdgeLog failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	if records[0].Polarity != ev1527.Rising || records[0].Ticks != 20000 {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].Polarity != ev1527.Falling || records[1].Ticks != 640 {
		t.Errorf("unexpected second record: %+v", records[1])
	}
	if records[2].Ticks != 320 {
		t.Errorf("unexpected third record: %+v", records[2])
	}
}

func TestParseEdgeLog_MalformedLine(t *testing.T) {
	input := "E,R,20000\nnot an edge record\n"

	_, err := ParseEdgeLog(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected error for malformed line, got nil")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected error to name line 2, got %q", err.Error())
	}
}

func TestParseEdgeLog_Empty(t *testing.T) {
	records, err := ParseEdgeLog(strings.NewReader("# only comments\n\n"))
	if err != nil {
		t.Fatalf("ParseEdgeLog failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestReadEdgeLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.edgelog")
	content := "# test capture\nE,R,100\nE,F,200\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write edge log: %v", err)
	}

	records, err := ReadEdgeLogFile(path)
	if err != nil {
		t.Fatalf("ReadEdgeLogFile failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestReadEdgeLogFile_Missing(t *testing.T) {
	_, err := ReadEdgeLogFile(filepath.Join(t.TempDir(), "missing.edgelog"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestReplayRecords_Unpaced(t *testing.T) {
	records, err := ParseEdgeLog(strings.NewReader("E,R,20000\nE,F,640\nE,R,320\n"))
	if err != nil {
		t.Fatalf("ParseEdgeLog failed: %v", err)
	}

	sink := &recordingSink{}
	if err := ReplayRecords(context.Background(), records, sink, units.Rate2MHz, 0); err != nil {
		t.Fatalf("ReplayRecords failed: %v", err)
	}

	if len(sink.records) != 3 {
		t.Fatalf("expected 3 records replayed, got %d", len(sink.records))
	}
	for i := range records {
		if sink.records[i] != records[i] {
			t.Errorf("record %d: got %+v, want %+v", i, sink.records[i], records[i])
		}
	}
}

func TestReplayRecords_CapsSaturatedIdle(t *testing.T) {
	// A capture's opening record usually carries an overflowed counter;
	// uncapped that would pace out to over half an hour at 2MHz.
	records := []capture.Record{
		{Polarity: ev1527.Rising, Ticks: ^ev1527.Tick(0), Overflow: true},
		{Polarity: ev1527.Falling, Ticks: 960},
	}

	sink := &recordingSink{}
	start := time.Now()
	if err := ReplayRecords(context.Background(), records, sink, units.Rate2MHz, 1); err != nil {
		t.Fatalf("ReplayRecords failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("saturated lead-in was not capped: replay took %v", elapsed)
	}
	if len(sink.records) != 2 {
		t.Fatalf("expected 2 records replayed, got %d", len(sink.records))
	}
}

func TestReplayRecords_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := ParseEdgeLog(strings.NewReader("E,R,2000000\n"))
	if err != nil {
		t.Fatalf("ParseEdgeLog failed: %v", err)
	}

	sink := &recordingSink{}
	if err := ReplayRecords(ctx, records, sink, units.Rate2MHz, 1); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sink.records) != 0 {
		t.Errorf("expected no records after cancellation, got %d", len(sink.records))
	}
}
