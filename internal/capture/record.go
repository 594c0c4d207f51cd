// Package capture binds a stream of edge-transition records to the decode
// path. A Bus implements the decoder's tick and edge sources on top of
// whatever delivers records: a serial capture adapter, a UDP listener, or a
// replay file.
package capture

import "github.com/banshee-data/keyfob.report/internal/ev1527"

// Record is one edge transition as reported by a capture source: the
// transition direction and the counter ticks elapsed since the previous
// transition. The adapter zeroes its counter at every capture, so ticks are
// always a delta.
type Record struct {
	Polarity ev1527.Polarity
	Ticks    ev1527.Tick

	// Overflow marks a delta that saturated the adapter counter. The
	// value still accumulates into elapsed time; the classifier rejects
	// the resulting pulse on its own.
	Overflow bool
}
