package capture

import (
	"context"
	"math"
	"sync"

	"github.com/banshee-data/keyfob.report/internal/ev1527"
)

// Bus adapts a record stream to the decoder's TickSource and EdgeSource
// interfaces. Records fed into it advance an accumulating tick counter;
// transitions matching the expected polarity are delivered to the registered
// callback, everything else just advances time, the way a one-polarity
// interrupt trigger would behave.
//
// The callback is invoked without the Bus lock held: the decoder calls back
// into SetExpectedPolarity and Disable from inside its edge handler.
type Bus struct {
	mu         sync.Mutex
	counter    uint64
	expected   ev1527.Polarity
	enabled    bool
	onEdge     func()
	delivered  uint64
	suppressed uint64
	overflows  uint64
}

func NewBus() *Bus {
	return &Bus{}
}

// Reset implements ev1527.TickSource.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.counter = 0
	b.mu.Unlock()
}

// Elapsed implements ev1527.TickSource, clamping at the tick type's range
// the same way the adapter counter pins at max during dead air.
func (b *Bus) Elapsed() ev1527.Tick {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.counter > math.MaxUint32 {
		return math.MaxUint32
	}
	return ev1527.Tick(b.counter)
}

// OnEdge implements ev1527.EdgeSource.
func (b *Bus) OnEdge(fn func()) {
	b.mu.Lock()
	b.onEdge = fn
	b.mu.Unlock()
}

// SetExpectedPolarity implements ev1527.EdgeSource.
func (b *Bus) SetExpectedPolarity(p ev1527.Polarity) {
	b.mu.Lock()
	b.expected = p
	b.mu.Unlock()
}

// Enable implements ev1527.EdgeSource.
func (b *Bus) Enable() {
	b.mu.Lock()
	b.enabled = true
	b.mu.Unlock()
}

// Disable implements ev1527.EdgeSource.
func (b *Bus) Disable() {
	b.mu.Lock()
	b.enabled = false
	b.mu.Unlock()
}

// Offer feeds one record into the bus. The record's tick delta always
// accumulates; the transition is delivered only when the bus is enabled and
// the polarity matches the expected direction.
func (b *Bus) Offer(rec Record) {
	b.mu.Lock()
	b.counter += uint64(rec.Ticks)
	if rec.Overflow {
		b.overflows++
	}
	fn := b.onEdge
	deliver := b.enabled && rec.Polarity == b.expected && fn != nil
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

// Stats reports delivery counts for status surfaces.
type Stats struct {
	Delivered  uint64 `json:"delivered"`
	Suppressed uint64 `json:"suppressed"`
	Overflows  uint64 `json:"overflows"`
}

func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Delivered: b.delivered, Suppressed: b.suppressed, Overflows: b.overflows}
}

// Feed drains records from ch into the bus until ch closes or ctx is done.
func Feed(ctx context.Context, ch <-chan Record, bus *Bus) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-ch:
			if !ok {
				return nil
			}
			bus.Offer(rec)
		}
	}
}
