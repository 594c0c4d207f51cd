// Package edgenet receives adapter edge records over UDP and replays
// recorded adapter traffic from pcap and edge-log files. Network-attached
// adapters batch edge transitions into small binary datagrams instead of
// streaming serial lines; this package decodes them back into capture
// records for the same bus the serial path feeds.
package edgenet

import (
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/keyfob.report/internal/capture"
	"github.com/banshee-data/keyfob.report/internal/ev1527"
)

// Datagram layout, little-endian:
//
//	offset 0: magic "E1" (0x4531 read big-endian)
//	offset 2: format version
//	offset 3: record count
//	offset 4: records, 5 bytes each: flags byte + uint32 tick delta
//
// Flag bit 0 carries the edge polarity (set = falling), bit 1 marks a
// saturated counter delta.
const (
	datagramHeaderLen = 4
	datagramRecordLen = 5

	// DatagramVersion is the wire format version this package speaks.
	DatagramVersion = 1

	// MaxDatagramRecords is the most edge records one datagram can carry;
	// the count field is a single byte.
	MaxDatagramRecords = 255

	// MaxDatagramSize is the size of a full datagram in bytes.
	MaxDatagramSize = datagramHeaderLen + MaxDatagramRecords*datagramRecordLen

	flagFalling  = 0x01
	flagOverflow = 0x02
)

// ParseDatagram decodes one adapter datagram into capture records.
func ParseDatagram(pkt []byte) ([]capture.Record, error) {
	if len(pkt) < datagramHeaderLen {
		return nil, fmt.Errorf("datagram too short: %d bytes", len(pkt))
	}
	if pkt[0] != 'E' || pkt[1] != '1' {
		return nil, fmt.Errorf("bad datagram magic 0x%02X%02X", pkt[0], pkt[1])
	}
	if pkt[2] != DatagramVersion {
		return nil, fmt.Errorf("unsupported datagram version %d", pkt[2])
	}

	count := int(pkt[3])
	want := datagramHeaderLen + count*datagramRecordLen
	if len(pkt) != want {
		return nil, fmt.Errorf("datagram length %d does not match record count %d (want %d)", len(pkt), count, want)
	}

	records := make([]capture.Record, 0, count)
	for i := 0; i < count; i++ {
		off := datagramHeaderLen + i*datagramRecordLen
		flags := pkt[off]
		polarity := ev1527.Rising
		if flags&flagFalling != 0 {
			polarity = ev1527.Falling
		}
		records = append(records, capture.Record{
			Polarity: polarity,
			Ticks:    ev1527.Tick(binary.LittleEndian.Uint32(pkt[off+1 : off+5])),
			Overflow: flags&flagOverflow != 0,
		})
	}
	return records, nil
}

// MarshalDatagram encodes capture records as one adapter datagram. Used by
// the replay tooling and tests; the adapter firmware is the usual producer.
func MarshalDatagram(records []capture.Record) ([]byte, error) {
	if len(records) > MaxDatagramRecords {
		return nil, fmt.Errorf("too many records for one datagram: %d (max %d)", len(records), MaxDatagramRecords)
	}

	pkt := make([]byte, datagramHeaderLen+len(records)*datagramRecordLen)
	pkt[0] = 'E'
	pkt[1] = '1'
	pkt[2] = DatagramVersion
	pkt[3] = byte(len(records))

	for i, rec := range records {
		off := datagramHeaderLen + i*datagramRecordLen
		var flags byte
		if rec.Polarity == ev1527.Falling {
			flags |= flagFalling
		}
		if rec.Overflow {
			flags |= flagOverflow
		}
		pkt[off] = flags
		binary.LittleEndian.PutUint32(pkt[off+1:off+5], uint32(rec.Ticks))
	}
	return pkt, nil
}
