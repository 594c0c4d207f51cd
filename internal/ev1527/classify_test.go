package ev1527

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	timing := DefaultTiming()
	tests := []struct {
		name    string
		pair    PulsePair
		want    Classification
		wantBit uint8
	}{
		{"nominal preamble", PulsePair{Low: 20000, High: 640}, Preamble, 0},
		{"preamble ratio exactly 25", PulsePair{Low: 16000, High: 640}, Preamble, 0},
		{"preamble ratio exactly 40", PulsePair{Low: 25600, High: 640}, Preamble, 0},
		{"preamble ratio just under 25", PulsePair{Low: 15999, High: 640}, Invalid, 0},
		{"preamble ratio just over 40", PulsePair{Low: 25601, High: 640}, Invalid, 0},
		{"preamble high at window min", PulsePair{Low: 10000, High: 320}, Preamble, 0},
		{"preamble high at window max", PulsePair{Low: 38400, High: 1280}, Preamble, 0},
		{"preamble high below window", PulsePair{Low: 9000, High: 300}, Invalid, 0},
		{"preamble high above window", PulsePair{Low: 38430, High: 1281}, Invalid, 0},
		{"nominal one", PulsePair{Low: 600, High: 1800}, DataBit, 1},
		{"nominal zero", PulsePair{Low: 1800, High: 600}, DataBit, 0},
		{"threshold exactly 1.5x is one", PulsePair{Low: 600, High: 900}, DataBit, 1},
		{"just under threshold is zero", PulsePair{Low: 600, High: 899}, DataBit, 0},
		{"equal halves are zero", PulsePair{Low: 800, High: 800}, DataBit, 0},
		{"low under data window", PulsePair{Low: 449, High: 1800}, Invalid, 0},
		{"high under data window", PulsePair{Low: 1800, High: 449}, Invalid, 0},
		{"low at window min", PulsePair{Low: 450, High: 1800}, DataBit, 1},
		{"high at window max", PulsePair{Low: 5666, High: 8500}, DataBit, 1},
		{"low over data window", PulsePair{Low: 8501, High: 600}, Invalid, 0},
		{"high over data window", PulsePair{Low: 600, High: 8501}, Invalid, 0},
		{"idle gap", PulsePair{Low: 4000000, High: 600}, Invalid, 0},
		{"zero pair", PulsePair{}, Invalid, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, bit := timing.Classify(tt.pair)
			if got != tt.want || bit != tt.wantBit {
				t.Errorf("Classify(%+v) = %v, %d; want %v, %d", tt.pair, got, bit, tt.want, tt.wantBit)
			}
		})
	}
}

func TestClassifyNoOverflow(t *testing.T) {
	timing := DefaultTiming()
	// A clamped counter value times the ratio bound would overflow 32 bits;
	// the comparison must still come out Invalid rather than wrapping into
	// an accept.
	got, _ := timing.Classify(PulsePair{Low: 0xFFFFFFFF, High: 640})
	if got != Invalid {
		t.Errorf("clamped low classified %v, want Invalid", got)
	}
	got, _ = timing.Classify(PulsePair{Low: 600, High: 0xFFFFFFFF})
	if got != Invalid {
		t.Errorf("clamped high classified %v, want Invalid", got)
	}
}

func TestTimingValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Timing)
		wantErr bool
	}{
		{"defaults", func(*Timing) {}, false},
		{"zero tick interval", func(tm *Timing) { tm.TickInterval = 0 }, true},
		{"negative tick interval", func(tm *Timing) { tm.TickInterval = -time.Microsecond }, true},
		{"preamble window inverted", func(tm *Timing) { tm.PreambleHighMin, tm.PreambleHighMax = 1280, 320 }, true},
		{"preamble window zero min", func(tm *Timing) { tm.PreambleHighMin = 0 }, true},
		{"ratio bounds inverted", func(tm *Timing) { tm.PreambleRatioMin, tm.PreambleRatioMax = 40, 25 }, true},
		{"ratio zero min", func(tm *Timing) { tm.PreambleRatioMin = 0 }, true},
		{"data window inverted", func(tm *Timing) { tm.DataPulseMin, tm.DataPulseMax = 8500, 450 }, true},
		{"data window zero min", func(tm *Timing) { tm.DataPulseMin = 0 }, true},
		{"zero threshold numerator", func(tm *Timing) { tm.BitThresholdNum = 0 }, true},
		{"zero threshold denominator", func(tm *Timing) { tm.BitThresholdDen = 0 }, true},
		{"equal window bounds", func(tm *Timing) { tm.PreambleHighMin, tm.PreambleHighMax = 640, 640 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timing := DefaultTiming()
			tt.mutate(&timing)
			err := timing.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTickRate(t *testing.T) {
	timing := DefaultTiming()
	if got := timing.TickRate(); got != 2000000 {
		t.Errorf("TickRate() = %d, want 2000000", got)
	}
	timing.TickInterval = time.Microsecond
	if got := timing.TickRate(); got != 1000000 {
		t.Errorf("TickRate() = %d, want 1000000", got)
	}
}

func TestFramePairsRoundTrip(t *testing.T) {
	const raw = 0x9C4F2A
	pairs := FramePairs(raw)
	if len(pairs) != 25 {
		t.Fatalf("FramePairs returned %d pairs, want 25", len(pairs))
	}
	timing := DefaultTiming()
	if cls, _ := timing.Classify(pairs[0]); cls != Preamble {
		t.Fatalf("first pair classified %v, want Preamble", cls)
	}
	var got uint32
	for i, p := range pairs[1:] {
		cls, bit := timing.Classify(p)
		if cls != DataBit {
			t.Fatalf("pair %d classified %v, want DataBit", i, cls)
		}
		got |= uint32(bit) << i
	}
	if got != raw {
		t.Errorf("reassembled raw = %06X, want %06X", got, raw)
	}
}
