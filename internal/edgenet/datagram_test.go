package edgenet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/banshee-data/keyfob.report/internal/capture"
	"github.com/banshee-data/keyfob.report/internal/ev1527"
)

func TestParseDatagram(t *testing.T) {
	// Two records: rising 20000 ticks, falling 640 ticks.
	pkt := []byte{
		'E', '1', 1, 2,
		0x00, 0x20, 0x4E, 0x00, 0x00,
		0x01, 0x80, 0x02, 0x00, 0x00,
	}

	records, err := ParseDatagram(pkt)
	if err != nil {
		t.Fatalf("ParseDatagram failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	if records[0].Polarity != ev1527.Rising || records[0].Ticks != 20000 || records[0].Overflow {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].Polarity != ev1527.Falling || records[1].Ticks != 640 || records[1].Overflow {
		t.Errorf("unexpected second record: %+v", records[1])
	}
}

func TestParseDatagram_OverflowFlag(t *testing.T) {
	pkt := []byte{
		'E', '1', 1, 1,
		0x02, 0xFF, 0xFF, 0xFF, 0xFF,
	}

	records, err := ParseDatagram(pkt)
	if err != nil {
		t.Fatalf("ParseDatagram failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if !records[0].Overflow {
		t.Error("expected overflow flag set")
	}
	if records[0].Ticks != 0xFFFFFFFF {
		t.Errorf("expected saturated tick count, got %d", records[0].Ticks)
	}
	if records[0].Polarity != ev1527.Rising {
		t.Errorf("expected rising polarity, got %v", records[0].Polarity)
	}
}

func TestParseDatagram_Empty(t *testing.T) {
	// A zero-record datagram is valid; idle adapters send them as keepalives.
	records, err := ParseDatagram([]byte{'E', '1', 1, 0})
	if err != nil {
		t.Fatalf("ParseDatagram failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected 0 records, got %d", len(records))
	}
}

func TestParseDatagram_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		pkt     []byte
		wantErr string
	}{
		{"nil", nil, "too short"},
		{"short header", []byte{'E', '1', 1}, "too short"},
		{"bad magic", []byte{'X', '1', 1, 0}, "bad datagram magic"},
		{"bad second magic byte", []byte{'E', '2', 1, 0}, "bad datagram magic"},
		{"bad version", []byte{'E', '1', 2, 0}, "unsupported datagram version"},
		{"truncated record", []byte{'E', '1', 1, 1, 0x00, 0x01}, "does not match record count"},
		{"count understates payload", []byte{'E', '1', 1, 0, 0x00, 0x01, 0x02, 0x03, 0x04}, "does not match record count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDatagram(tt.pkt)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestMarshalDatagram(t *testing.T) {
	records := []capture.Record{
		{Polarity: ev1527.Rising, Ticks: 20000},
		{Polarity: ev1527.Falling, Ticks: 640},
		{Polarity: ev1527.Rising, Ticks: 0xFFFFFFFF, Overflow: true},
	}

	pkt, err := MarshalDatagram(records)
	if err != nil {
		t.Fatalf("MarshalDatagram failed: %v", err)
	}

	want := []byte{
		'E', '1', 1, 3,
		0x00, 0x20, 0x4E, 0x00, 0x00,
		0x01, 0x80, 0x02, 0x00, 0x00,
		0x02, 0xFF, 0xFF, 0xFF, 0xFF,
	}
	if !bytes.Equal(pkt, want) {
		t.Errorf("unexpected datagram bytes:\n got %X\nwant %X", pkt, want)
	}

	// And the listener must accept what the tooling produces.
	back, err := ParseDatagram(pkt)
	if err != nil {
		t.Fatalf("ParseDatagram of marshalled datagram failed: %v", err)
	}
	if len(back) != len(records) {
		t.Fatalf("expected %d records back, got %d", len(records), len(back))
	}
	for i := range records {
		if back[i] != records[i] {
			t.Errorf("record %d: got %+v, want %+v", i, back[i], records[i])
		}
	}
}

func TestMarshalDatagram_TooManyRecords(t *testing.T) {
	records := make([]capture.Record, MaxDatagramRecords+1)
	_, err := MarshalDatagram(records)
	if err == nil {
		t.Fatal("expected error for oversized record batch, got nil")
	}
	if !strings.Contains(err.Error(), "too many records") {
		t.Errorf("unexpected error: %v", err)
	}
}
