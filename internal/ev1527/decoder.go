// Package ev1527 decodes the EV1527 fixed-code RF remote protocol from a
// stream of edge-transition timings.
//
// The protocol is pure timing: each of the 24 frame bits is a HIGH+LOW pulse
// pair whose duty ratio (about 3:1 for a 1, 1:3 for a 0) carries the value,
// preceded by a preamble pair with a short HIGH and a LOW 25 to 40 times
// longer. The Decoder consumes edges from an EdgeSource, measures pulse
// halves with a TickSource, and latches each completed 24-bit frame for a
// read-and-acknowledge consumer. It is hardware-agnostic: anything that can
// timestamp transitions on a receiver's data pin can drive it.
package ev1527

import (
	"errors"
	"sync"
)

// frameBits is the fixed EV1527 frame length: 20 address bits plus 4 key
// bits.
const frameBits = 24

type state uint8

const (
	stateAwaitingFirstEdge state = iota
	stateMeasuringHigh
	stateMeasuringLow
)

// Stats counts decoder activity since construction. Snapshot via
// Decoder.Stats.
type Stats struct {
	Edges         uint64 `json:"edges"`
	Pairs         uint64 `json:"pairs"`
	Preambles     uint64 `json:"preambles"`
	InvalidPulses uint64 `json:"invalid_pulses"`
	Frames        uint64 `json:"frames"`
}

// Decoder is the EV1527 frame state machine for one receiver channel.
//
// A Decoder starts disabled; Enable arms it. Every edge event is processed
// to completion without blocking, so the edge handler is safe to run from a
// capture goroutine's delivery path. On the 24th data bit the Decoder
// latches the frame, invokes the optional frame handler, and disables
// itself; it will not overwrite an unread frame because only Enable (which
// discards the latch) resumes decoding. An invalid pulse mid-frame drops
// the partial frame and returns to preamble scanning without disabling.
type Decoder struct {
	ticks TickSource
	edges EdgeSource

	mu           sync.Mutex
	timing       Timing
	enabled      bool
	state        state
	preambleSeen bool
	bitIndex     uint8
	raw          uint32
	highTicks    Tick
	stats        Stats
	onFrame      func(Frame)

	latch latch
}

// NewDecoder builds a disabled Decoder over the given sources. The timing is
// validated here so malformed bounds never reach the decode path.
func NewDecoder(t Timing, ticks TickSource, edges EdgeSource) (*Decoder, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if ticks == nil || edges == nil {
		return nil, errors.New("ev1527: tick and edge sources are required")
	}
	d := &Decoder{
		timing: t,
		ticks:  ticks,
		edges:  edges,
	}
	edges.OnEdge(d.handleEdge)
	return d, nil
}

// SetFrameHandler registers fn to be called once per completed frame, after
// the frame is latched. fn runs on the edge-delivery goroutine and must not
// block; it may call ReadFrame, ClearReady and Enable.
func (d *Decoder) SetFrameHandler(fn func(Frame)) {
	d.mu.Lock()
	d.onFrame = fn
	d.mu.Unlock()
}

// Enable arms the decoder: any unread latched frame is discarded, assembly
// state resets to awaiting the first rising edge, and edge delivery resumes.
// Discarding the latch is deliberate; callers that care about the previous
// frame must read it before re-arming.
func (d *Decoder) Enable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latch.clear()
	d.resetAssembly()
	d.state = stateAwaitingFirstEdge
	d.enabled = true
	d.edges.SetExpectedPolarity(Rising)
	d.edges.Enable()
}

// Disable stops edge processing and discards any in-flight measurement. A
// latched frame stays readable. Safe to call from any goroutine at any time.
func (d *Decoder) Disable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = false
	d.edges.Disable()
	d.resetAssembly()
	d.state = stateAwaitingFirstEdge
}

// Enabled reports whether the decoder is currently processing edges.
func (d *Decoder) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// ReadFrame returns the latched frame without consuming it: a second read
// before ClearReady returns the same frame. The bool mirrors the ready flag.
func (d *Decoder) ReadFrame() (Frame, bool) {
	return d.latch.read()
}

// ClearReady acknowledges the latched frame. The frame value itself is kept
// until the next Enable overwrites it.
func (d *Decoder) ClearReady() {
	d.latch.clearReady()
}

// Stats returns a snapshot of the activity counters.
func (d *Decoder) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Timing returns the active timing constants.
func (d *Decoder) Timing() Timing {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timing
}

// SetTiming swaps the classification constants at runtime. Any in-progress
// frame is dropped; an enabled decoder goes back to scanning for a preamble
// under the new bounds.
func (d *Decoder) SetTiming(t Timing) error {
	if err := t.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timing = t
	d.resetAssembly()
	d.state = stateAwaitingFirstEdge
	if d.enabled {
		d.edges.SetExpectedPolarity(Rising)
	}
	return nil
}

// handleEdge is the edge-event entry point registered with the EdgeSource.
// One call either starts a measurement or completes one, never both.
func (d *Decoder) handleEdge() {
	d.mu.Lock()
	if !d.enabled {
		d.mu.Unlock()
		return
	}
	d.stats.Edges++
	var (
		frame    Frame
		complete bool
	)
	switch d.state {
	case stateAwaitingFirstEdge:
		// Rising edge of some HIGH half. Whatever idle time preceded
		// it is discarded with the counter reset.
		d.resetAssembly()
		d.ticks.Reset()
		d.state = stateMeasuringHigh
		d.edges.SetExpectedPolarity(Falling)
	case stateMeasuringHigh:
		d.highTicks = d.ticks.Elapsed()
		d.ticks.Reset()
		d.state = stateMeasuringLow
		d.edges.SetExpectedPolarity(Rising)
	case stateMeasuringLow:
		pair := PulsePair{Low: d.ticks.Elapsed(), High: d.highTicks}
		d.ticks.Reset()
		d.stats.Pairs++
		frame, complete = d.consumePair(pair)
	}
	fn := d.onFrame
	d.mu.Unlock()
	if complete && fn != nil {
		fn(frame)
	}
}

// consumePair feeds one completed pair through the classifier and advances
// the frame assembly. Called with d.mu held; returns the completed frame
// when this pair was the 24th data bit.
func (d *Decoder) consumePair(p PulsePair) (Frame, bool) {
	cls, bit := d.timing.Classify(p)
	if !d.preambleSeen {
		if cls == Preamble {
			d.preambleSeen = true
			d.raw, d.bitIndex = 0, 0
			d.stats.Preambles++
		}
		// Non-preamble pairs before the preamble are plain noise:
		// skip them and keep measuring, no reset.
		d.continueMeasuring()
		return Frame{}, false
	}
	if cls != DataBit {
		// Frame failure. Drop progress and rescan from a fresh first
		// edge; the decoder stays enabled.
		d.stats.InvalidPulses++
		d.resetAssembly()
		d.state = stateAwaitingFirstEdge
		d.edges.SetExpectedPolarity(Rising)
		return Frame{}, false
	}
	if bit != 0 {
		d.raw |= 1 << d.bitIndex
	}
	d.bitIndex++
	if d.bitIndex < frameBits {
		d.continueMeasuring()
		return Frame{}, false
	}
	frame := Frame{Raw: d.raw}
	d.latch.set(frame)
	d.stats.Frames++
	d.enabled = false
	d.edges.Disable()
	d.resetAssembly()
	d.state = stateAwaitingFirstEdge
	return frame, true
}

// continueMeasuring arms the next HIGH half. The rising edge that closed the
// LOW half already started it, and the counter was reset at that edge.
func (d *Decoder) continueMeasuring() {
	d.state = stateMeasuringHigh
	d.edges.SetExpectedPolarity(Falling)
}

func (d *Decoder) resetAssembly() {
	d.preambleSeen = false
	d.bitIndex = 0
	d.raw = 0
	d.highTicks = 0
}

// latch is the shared cell between the decode path (single writer) and the
// application (readers). Multi-field reads go through one mutex so a torn
// frame can never be observed.
type latch struct {
	mu    sync.Mutex
	frame Frame
	ready bool
}

func (l *latch) set(f Frame) {
	l.mu.Lock()
	l.frame, l.ready = f, true
	l.mu.Unlock()
}

func (l *latch) clear() {
	l.mu.Lock()
	l.frame, l.ready = Frame{}, false
	l.mu.Unlock()
}

func (l *latch) clearReady() {
	l.mu.Lock()
	l.ready = false
	l.mu.Unlock()
}

func (l *latch) read() (Frame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frame, l.ready
}
