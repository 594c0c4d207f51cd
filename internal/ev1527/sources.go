package ev1527

// Polarity identifies a signal transition direction.
type Polarity uint8

const (
	Rising Polarity = iota
	Falling
)

func (p Polarity) String() string {
	if p == Rising {
		return "rising"
	}
	return "falling"
}

// Opposite returns the other transition direction.
func (p Polarity) Opposite() Polarity {
	if p == Rising {
		return Falling
	}
	return Rising
}

// TickSource is the free-running capture counter the decoder measures pulse
// halves with. Reset zeroes it; Elapsed returns ticks accumulated since the
// last Reset. The counter keeps running whether or not edges are delivered,
// so idle time before a frame is measured into the first discarded interval.
type TickSource interface {
	Reset()
	Elapsed() Tick
}

// EdgeSource delivers signal transitions to a registered callback. It mirrors
// a single-polarity interrupt trigger: only transitions matching the expected
// polarity invoke the callback, and delivery can be gated off entirely while
// leaving the tick counter running. Implementations must not hold internal
// locks while invoking the callback; the decoder calls back into the source
// (SetExpectedPolarity, Disable) from inside its edge handler.
type EdgeSource interface {
	// OnEdge registers the edge-event callback. At most one callback is
	// active; registering replaces any previous one.
	OnEdge(func())
	// SetExpectedPolarity selects which transition direction triggers the
	// callback next.
	SetExpectedPolarity(Polarity)
	// Enable starts callback delivery.
	Enable()
	// Disable stops callback delivery. Transitions that arrive while
	// disabled are counted into elapsed time but never delivered.
	Disable()
}
