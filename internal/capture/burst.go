package capture

import (
	"github.com/banshee-data/keyfob.report/internal/ev1527"
)

// BurstRecords expands a pulse sequence into the records a capture adapter
// would stream for it: an opening rising edge carrying the lead-in gap, then
// a falling and a rising transition per pair. The rising edge that closes
// each pair doubles as the start of the next pair's high phase.
func BurstRecords(pairs []ev1527.PulsePair, leadIn ev1527.Tick) []Record {
	recs := make([]Record, 0, 1+2*len(pairs))
	recs = append(recs, Record{Polarity: ev1527.Rising, Ticks: leadIn})
	for _, p := range pairs {
		recs = append(recs,
			Record{Polarity: ev1527.Falling, Ticks: p.High},
			Record{Polarity: ev1527.Rising, Ticks: p.Low},
		)
	}
	return recs
}

// FrameRecords returns the adapter record stream for a single complete frame
// transmission of raw: preamble plus 24 data bits.
func FrameRecords(raw uint32, leadIn ev1527.Tick) []Record {
	return BurstRecords(ev1527.FramePairs(raw), leadIn)
}
