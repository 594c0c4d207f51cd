package ev1527

import (
	"fmt"
	"time"
)

// Timing holds the tunable pulse-classification constants. The defaults
// match the common EV1527 encoder chips (nominal 640-tick preamble HIGH at a
// 2 MHz counter), but every bound is configurable so compatible fixed-code
// protocols with other oscillator resistors can be decoded too.
type Timing struct {
	// TickInterval is the duration of one counter tick.
	TickInterval time.Duration

	// PreambleHighMin/Max bound the preamble's short HIGH half, in ticks.
	PreambleHighMin Tick
	PreambleHighMax Tick

	// PreambleRatioMin/Max bound the preamble LOW:HIGH ratio, inclusive.
	PreambleRatioMin uint32
	PreambleRatioMax uint32

	// DataPulseMin/Max bound both halves of a plausible data pulse, in
	// ticks. Either half outside the window invalidates the pulse
	// regardless of ratio.
	DataPulseMin Tick
	DataPulseMax Tick

	// BitThresholdNum/Den express the bit decision as a rational:
	// HIGH*Den >= LOW*Num decodes as 1. The protocol's ~3:1 and ~1:3
	// duty ratios separate cleanly at 3/2 (HIGH >= 1.5x LOW).
	BitThresholdNum uint32
	BitThresholdDen uint32
}

// DefaultTiming returns the stock EV1527 timing at a 2 MHz capture counter
// (0.5us per tick).
func DefaultTiming() Timing {
	return Timing{
		TickInterval:     500 * time.Nanosecond,
		PreambleHighMin:  320,
		PreambleHighMax:  1280,
		PreambleRatioMin: 25,
		PreambleRatioMax: 40,
		DataPulseMin:     450,
		DataPulseMax:     8500,
		BitThresholdNum:  3,
		BitThresholdDen:  2,
	}
}

// Validate rejects malformed timing before it can reach the decode path.
func (t Timing) Validate() error {
	if t.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", t.TickInterval)
	}
	if t.PreambleHighMin == 0 || t.PreambleHighMin > t.PreambleHighMax {
		return fmt.Errorf("preamble high window [%d,%d] is invalid", t.PreambleHighMin, t.PreambleHighMax)
	}
	if t.PreambleRatioMin == 0 || t.PreambleRatioMin > t.PreambleRatioMax {
		return fmt.Errorf("preamble ratio bounds [%d,%d] are invalid", t.PreambleRatioMin, t.PreambleRatioMax)
	}
	if t.DataPulseMin == 0 || t.DataPulseMin > t.DataPulseMax {
		return fmt.Errorf("data pulse window [%d,%d] is invalid", t.DataPulseMin, t.DataPulseMax)
	}
	if t.BitThresholdNum == 0 || t.BitThresholdDen == 0 {
		return fmt.Errorf("bit threshold %d/%d must have nonzero terms", t.BitThresholdNum, t.BitThresholdDen)
	}
	return nil
}

// TickRate returns the counter frequency in Hz implied by TickInterval.
func (t Timing) TickRate() uint32 {
	if t.TickInterval <= 0 {
		return 0
	}
	return uint32(time.Second / t.TickInterval)
}
