package ev1527

import (
	"math"
	"sync"
)

// SimBus is an in-memory TickSource and EdgeSource pair for driving a
// Decoder from synthetic timings. Tests and the replay tools use it in place
// of a live capture adapter.
//
// Time only advances when the caller plays edges or idle gaps, so runs are
// fully deterministic. Mirroring real capture hardware, every transition
// advances the counter but only transitions matching the expected polarity
// reach the registered callback, and the callback is invoked without the
// internal lock held.
type SimBus struct {
	mu         sync.Mutex
	counter    uint64
	expected   Polarity
	enabled    bool
	onEdge     func()
	delivered  uint64
	suppressed uint64
}

func NewSimBus() *SimBus {
	return &SimBus{}
}

// Reset implements TickSource.
func (b *SimBus) Reset() {
	b.mu.Lock()
	b.counter = 0
	b.mu.Unlock()
}

// Elapsed implements TickSource. Long idle gaps clamp at the counter's full
// range, the same way a real capture counter pins at max.
func (b *SimBus) Elapsed() Tick {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.counter > math.MaxUint32 {
		return math.MaxUint32
	}
	return Tick(b.counter)
}

// OnEdge implements EdgeSource.
func (b *SimBus) OnEdge(fn func()) {
	b.mu.Lock()
	b.onEdge = fn
	b.mu.Unlock()
}

// SetExpectedPolarity implements EdgeSource.
func (b *SimBus) SetExpectedPolarity(p Polarity) {
	b.mu.Lock()
	b.expected = p
	b.mu.Unlock()
}

// Enable implements EdgeSource.
func (b *SimBus) Enable() {
	b.mu.Lock()
	b.enabled = true
	b.mu.Unlock()
}

// Disable implements EdgeSource.
func (b *SimBus) Disable() {
	b.mu.Lock()
	b.enabled = false
	b.mu.Unlock()
}

// Idle advances time by n ticks with no transition.
func (b *SimBus) Idle(n Tick) {
	b.mu.Lock()
	b.counter += uint64(n)
	b.mu.Unlock()
}

// Edge advances time by n ticks and then delivers a transition to polarity
// p. Suppressed transitions (delivery disabled, wrong polarity, no callback)
// still advance the counter.
func (b *SimBus) Edge(p Polarity, n Tick) {
	b.mu.Lock()
	b.counter += uint64(n)
	fn := b.onEdge
	deliver := b.enabled && p == b.expected && fn != nil
	if deliver {
		b.delivered++
	} else {
		b.suppressed++
	}
	b.mu.Unlock()
	if deliver {
		fn()
	}
}

// PlayPair plays one HIGH+LOW cycle: a falling edge after the HIGH half and
// a rising edge after the LOW half. The rising edge that closes the pair is
// also the start of the next one.
func (b *SimBus) PlayPair(p PulsePair) {
	b.Edge(Falling, p.High)
	b.Edge(Rising, p.Low)
}

// PlayPairs opens with the rising edge that starts the first HIGH half, then
// plays each pair in sequence.
func (b *SimBus) PlayPairs(pairs []PulsePair) {
	b.Edge(Rising, 0)
	for _, p := range pairs {
		b.PlayPair(p)
	}
}

// Delivered and Suppressed report how many transitions reached, or were
// hidden from, the callback.
func (b *SimBus) Delivered() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delivered
}

func (b *SimBus) Suppressed() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.suppressed
}
