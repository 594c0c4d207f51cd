package ev1527

// Classification is the pulse classifier's verdict on one PulsePair.
type Classification uint8

const (
	// Invalid marks a pair outside every recognized shape.
	Invalid Classification = iota
	// Preamble marks the frame-start pair: short HIGH, LOW between
	// PreambleRatioMin and PreambleRatioMax times the HIGH.
	Preamble
	// DataBit marks a pair whose halves both fall inside the data-pulse
	// window; the bit value accompanies the classification.
	DataBit
)

func (c Classification) String() string {
	switch c {
	case Preamble:
		return "preamble"
	case DataBit:
		return "data"
	default:
		return "invalid"
	}
}

// Classify is a pure function of one pulse pair. The preamble test wins when
// a pair satisfies both shapes (impossible at the default timing, where the
// two windows are disjoint). The returned bit is meaningful only for DataBit.
//
// All comparisons are integer cross-multiplications widened to 64 bits; no
// floating point touches the decode path.
func (t Timing) Classify(p PulsePair) (Classification, uint8) {
	if t.isPreamble(p) {
		return Preamble, 0
	}
	if !t.validData(p) {
		return Invalid, 0
	}
	if t.isOne(p) {
		return DataBit, 1
	}
	return DataBit, 0
}

// isPreamble reports whether p has preamble shape: HIGH inside the short
// window and LOW between RatioMin and RatioMax times the HIGH, inclusive on
// both ratio bounds.
func (t Timing) isPreamble(p PulsePair) bool {
	if p.High < t.PreambleHighMin || p.High > t.PreambleHighMax {
		return false
	}
	low := uint64(p.Low)
	return low >= uint64(p.High)*uint64(t.PreambleRatioMin) &&
		low <= uint64(p.High)*uint64(t.PreambleRatioMax)
}

// validData reports whether both halves sit inside the absolute data-pulse
// window. Ratio is irrelevant here; a half outside the window (idle gaps,
// glitches, clamped counters) invalidates the pulse outright.
func (t Timing) validData(p PulsePair) bool {
	return p.Low >= t.DataPulseMin && p.Low <= t.DataPulseMax &&
		p.High >= t.DataPulseMin && p.High <= t.DataPulseMax
}

// isOne applies the bit threshold: HIGH >= (Num/Den) x LOW decodes as 1,
// inclusive on the 1 side.
func (t Timing) isOne(p PulsePair) bool {
	return uint64(p.High)*uint64(t.BitThresholdDen) >= uint64(p.Low)*uint64(t.BitThresholdNum)
}
