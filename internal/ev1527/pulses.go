package ev1527

// Nominal EV1527 pulse widths in ticks at the default 2 MHz counter. One
// encoder "alpha" period is 640 ticks (320us); a bit is four alphas split
// 3:1 or 1:3, and the preamble LOW is 31 alphas.
const (
	NominalPreambleHigh Tick = 640
	NominalPreambleLow  Tick = 20000
	NominalBitShort     Tick = 600
	NominalBitLong      Tick = 1800
)

// PreamblePair returns the nominal frame-start pair.
func PreamblePair() PulsePair {
	return PulsePair{Low: NominalPreambleLow, High: NominalPreambleHigh}
}

// BitPair returns the nominal pair encoding one bit: long HIGH for 1, long
// LOW for 0.
func BitPair(bit uint8) PulsePair {
	if bit != 0 {
		return PulsePair{Low: NominalBitShort, High: NominalBitLong}
	}
	return PulsePair{Low: NominalBitLong, High: NominalBitShort}
}

// FramePairs expands a 24-bit raw value into its on-air pulse sequence:
// preamble first, then bit 0 through bit 23. The inverse of what the
// Decoder assembles; used by the replay tooling and tests.
func FramePairs(raw uint32) []PulsePair {
	out := make([]PulsePair, 0, frameBits+1)
	out = append(out, PreamblePair())
	for i := 0; i < frameBits; i++ {
		out = append(out, BitPair(uint8(raw>>i)&1))
	}
	return out
}
