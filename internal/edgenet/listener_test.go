package edgenet

import (
	"context"
	"testing"
	"time"

	"github.com/banshee-data/keyfob.report/internal/capture"
	"github.com/banshee-data/keyfob.report/internal/ev1527"
)

// MockFullPacketStats implements PacketStatsInterface for testing
type MockFullPacketStats struct {
	packetCount int
	droppedCnt  int
	recordCount int
	invalidCnt  int
	logCalls    int
}

func (m *MockFullPacketStats) AddPacket(bytes int) {
	m.packetCount++
}

func (m *MockFullPacketStats) AddDropped() {
	m.droppedCnt++
}

func (m *MockFullPacketStats) AddRecords(count int) {
	m.recordCount += count
}

func (m *MockFullPacketStats) AddInvalid() {
	m.invalidCnt++
}

func (m *MockFullPacketStats) LogStats() {
	m.logCalls++
}

// recordingSink collects offered records for assertions.
type recordingSink struct {
	records []capture.Record
}

func (s *recordingSink) Offer(rec capture.Record) {
	s.records = append(s.records, rec)
}

func TestNewUDPListener_Defaults(t *testing.T) {
	config := UDPListenerConfig{
		Address: ":17713",
		RcvBuf:  1024 * 1024,
	}

	listener := NewUDPListener(config)

	if listener == nil {
		t.Fatal("NewUDPListener returned nil")
	}
	if listener.address != ":17713" {
		t.Errorf("Expected address ':17713', got '%s'", listener.address)
	}
	if listener.rcvBuf != 1024*1024 {
		t.Errorf("Expected rcvBuf %d, got %d", 1024*1024, listener.rcvBuf)
	}
	// Check default log interval is set
	if listener.logInterval != time.Minute {
		t.Errorf("Expected default log interval 1 minute, got %v", listener.logInterval)
	}
	// stats should be noopStats by default
	if listener.stats == nil {
		t.Error("Expected default noop stats, got nil")
	}
	// socket factory should default to the real implementation
	if listener.factory == nil {
		t.Error("Expected default socket factory, got nil")
	}
}

func TestNewUDPListener_WithStats(t *testing.T) {
	stats := &MockFullPacketStats{}
	config := UDPListenerConfig{
		Address:     ":17713",
		RcvBuf:      1024 * 1024,
		Stats:       stats,
		LogInterval: 30 * time.Second,
	}

	listener := NewUDPListener(config)

	if listener.stats != stats {
		t.Error("Expected custom stats to be used")
	}
	if listener.logInterval != 30*time.Second {
		t.Errorf("Expected log interval 30s, got %v", listener.logInterval)
	}
}

func TestUDPListener_HandlePacket(t *testing.T) {
	stats := &MockFullPacketStats{}
	sink := &recordingSink{}

	listener := NewUDPListener(UDPListenerConfig{
		Address: ":17713",
		RcvBuf:  65536,
		Stats:   stats,
		Sink:    sink,
	})

	pkt, err := MarshalDatagram([]capture.Record{
		{Polarity: ev1527.Rising, Ticks: 20000},
		{Polarity: ev1527.Falling, Ticks: 640},
	})
	if err != nil {
		t.Fatalf("MarshalDatagram failed: %v", err)
	}

	if err := listener.handlePacket(pkt); err != nil {
		t.Fatalf("handlePacket failed: %v", err)
	}

	if stats.packetCount != 1 {
		t.Errorf("expected 1 packet counted, got %d", stats.packetCount)
	}
	if stats.recordCount != 2 {
		t.Errorf("expected 2 records counted, got %d", stats.recordCount)
	}
	if len(sink.records) != 2 {
		t.Fatalf("expected 2 records in sink, got %d", len(sink.records))
	}
	if sink.records[0].Ticks != 20000 || sink.records[1].Ticks != 640 {
		t.Errorf("unexpected sink records: %+v", sink.records)
	}
}

func TestUDPListener_HandlePacket_Invalid(t *testing.T) {
	stats := &MockFullPacketStats{}
	sink := &recordingSink{}

	listener := NewUDPListener(UDPListenerConfig{
		Address: ":17713",
		RcvBuf:  65536,
		Stats:   stats,
		Sink:    sink,
	})

	if err := listener.handlePacket([]byte("not a datagram")); err == nil {
		t.Fatal("expected error for invalid datagram, got nil")
	}

	if stats.invalidCnt != 1 {
		t.Errorf("expected 1 invalid datagram counted, got %d", stats.invalidCnt)
	}
	if len(sink.records) != 0 {
		t.Errorf("expected no records in sink, got %d", len(sink.records))
	}
}

func TestUDPListener_HandlePacket_NilSink(t *testing.T) {
	listener := NewUDPListener(UDPListenerConfig{
		Address: ":17713",
		RcvBuf:  65536,
	})

	pkt, err := MarshalDatagram([]capture.Record{{Polarity: ev1527.Rising, Ticks: 100}})
	if err != nil {
		t.Fatalf("MarshalDatagram failed: %v", err)
	}

	// Must not panic without a sink
	if err := listener.handlePacket(pkt); err != nil {
		t.Fatalf("handlePacket failed: %v", err)
	}
}

func TestUDPListener_Start_MockSocket(t *testing.T) {
	valid, err := MarshalDatagram([]capture.Record{
		{Polarity: ev1527.Rising, Ticks: 20000},
		{Polarity: ev1527.Falling, Ticks: 640},
	})
	if err != nil {
		t.Fatalf("MarshalDatagram failed: %v", err)
	}

	mockSocket := NewMockUDPSocket([]MockUDPPacket{
		{Data: valid},
		{Data: []byte("garbage")},
	})
	mockFactory := NewMockUDPSocketFactory(mockSocket)

	stats := &MockFullPacketStats{}
	sink := &recordingSink{}
	listener := NewUDPListener(UDPListenerConfig{
		Address:       "127.0.0.1:17713",
		RcvBuf:        65536,
		SocketFactory: mockFactory,
		Stats:         stats,
		Sink:          sink,
		LogInterval:   time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Start(ctx) }()

	// Let the listener drain the mock packets, then stop it.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not exit after cancellation")
	}

	if len(mockFactory.ListenCalls) != 1 {
		t.Errorf("expected 1 ListenUDP call, got %d", len(mockFactory.ListenCalls))
	}
	if stats.packetCount != 2 {
		t.Errorf("expected 2 packets counted, got %d", stats.packetCount)
	}
	if stats.invalidCnt != 1 {
		t.Errorf("expected 1 invalid datagram, got %d", stats.invalidCnt)
	}
	if len(sink.records) != 2 {
		t.Errorf("expected 2 records in sink, got %d", len(sink.records))
	}
}

func TestUDPListener_Close_Nil(t *testing.T) {
	listener := &UDPListener{}

	// Close with nil connection should not error
	err := listener.Close()
	if err != nil {
		t.Errorf("Close with nil conn returned error: %v", err)
	}
}

func TestNoopStats(t *testing.T) {
	stats := &noopStats{}

	// These should all be no-ops and not panic
	stats.AddPacket(100)
	stats.AddDropped()
	stats.AddRecords(50)
	stats.AddInvalid()
	stats.LogStats()
}
