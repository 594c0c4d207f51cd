package ev1527

import "fmt"

// Tick is one hardware-counter increment. The counter resolution (time per
// tick) is fixed by Timing.TickInterval at configuration time; everything on
// the decode path stays in ticks so absolute clock drift cancels out of the
// ratio checks.
type Tick uint32

// PulsePair is one full HIGH+LOW carrier cycle as measured between edge
// transitions. Pairs are ephemeral: built once per two edges, classified,
// then discarded.
type PulsePair struct {
	Low  Tick `json:"low_ticks"`
	High Tick `json:"high_ticks"`
}

// Frame is a fully assembled 24-bit decode result. The first bit received
// over the air occupies bit 0 of Raw; the transmitter's 20-bit address is the
// top 20 bits and the 4-bit key code the bottom nibble.
type Frame struct {
	Raw uint32 `json:"raw"`
}

// Address returns the 20-bit transmitter address (top 20 bits of Raw).
func (f Frame) Address() uint32 { return (f.Raw >> 4) & 0xFFFFF }

// Key returns the 4-bit key code (bottom nibble of Raw).
func (f Frame) Key() uint8 { return uint8(f.Raw & 0xF) }

func (f Frame) String() string {
	return fmt.Sprintf("addr=%05X key=%X", f.Address(), f.Key())
}
