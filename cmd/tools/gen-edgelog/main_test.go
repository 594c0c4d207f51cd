package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/keyfob.report/internal/capture"
	"github.com/banshee-data/keyfob.report/internal/edgenet"
	"github.com/banshee-data/keyfob.report/internal/ev1527"
	"github.com/banshee-data/keyfob.report/internal/units"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write scenario: %v", err)
	}
	return path
}

func TestLoadScenarioDefaults(t *testing.T) {
	path := writeScenario(t, "presses:\n  - frame: \"0x8BEEF1\"\n")

	sc, err := loadScenario(path)
	if err != nil {
		t.Fatalf("loadScenario failed: %v", err)
	}

	if sc.TickRateHz != units.Rate2MHz {
		t.Errorf("expected default tick rate %d, got %d", units.Rate2MHz, sc.TickRateHz)
	}
	if sc.Presses[0].Repeats != DEFAULT_REPEATS {
		t.Errorf("expected default repeats %d, got %d", DEFAULT_REPEATS, sc.Presses[0].Repeats)
	}
	if sc.Presses[0].GapTicks != DEFAULT_GAP_TICKS {
		t.Errorf("expected default gap %d, got %d", DEFAULT_GAP_TICKS, sc.Presses[0].GapTicks)
	}
	raw, err := sc.Presses[0].frameCode()
	if err != nil {
		t.Fatalf("frameCode failed: %v", err)
	}
	if raw != 0x8BEEF1 {
		t.Errorf("expected frame 0x8BEEF1, got 0x%06X", raw)
	}
}

func TestLoadScenarioRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed yaml", "presses: ["},
		{"no presses", "tick_rate_hz: 2000000\n"},
		{"bad frame code", "presses:\n  - frame: \"kitchen\"\n"},
		{"frame too wide", "presses:\n  - frame: \"0x1000000\"\n"},
		{"unsupported tick rate", "tick_rate_hz: 3000000\npresses:\n  - frame: \"0x1\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, tt.body)
			if _, err := loadScenario(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := loadScenario(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file, got nil")
		}
	})
}

// TestBuildEdgeLogDecodes proves the synthesized log round-trips: parse it
// back as adapter records and every burst decodes to its scenario frame.
func TestBuildEdgeLogDecodes(t *testing.T) {
	sc := &Scenario{
		TickRateHz: units.Rate2MHz,
		Presses: []Press{
			{Frame: "0x8BEEF1", Repeats: 2, GapTicks: 24000},
			{Frame: "0x04D2A8", Repeats: 1, GapTicks: 24000},
		},
	}

	content, bursts := buildEdgeLog(sc, "round-trip")
	if bursts != 3 {
		t.Fatalf("expected 3 bursts, got %d", bursts)
	}
	if !strings.HasPrefix(content, "#") {
		t.Error("expected a comment header on the generated log")
	}

	records, err := edgenet.ParseEdgeLog(strings.NewReader(content))
	if err != nil {
		t.Fatalf("generated log did not parse: %v", err)
	}

	bus := capture.NewBus()
	decoder, err := ev1527.NewDecoder(ev1527.DefaultTiming(), bus, bus)
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}

	var decoded []uint32
	decoder.SetFrameHandler(func(f ev1527.Frame) {
		decoded = append(decoded, f.Raw)
		decoder.Enable()
	})
	decoder.Enable()

	for _, rec := range records {
		bus.Offer(rec)
	}

	want := []uint32{0x8BEEF1, 0x8BEEF1, 0x04D2A8}
	if len(decoded) != len(want) {
		t.Fatalf("expected %d decoded frames, got %d", len(want), len(decoded))
	}
	for i, raw := range want {
		if decoded[i] != raw {
			t.Errorf("frame %d: expected 0x%06X, got 0x%06X", i, raw, decoded[i])
		}
	}
}
