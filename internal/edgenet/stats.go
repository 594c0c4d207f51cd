package edgenet

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// StatsSnapshot represents a snapshot of current statistics
type StatsSnapshot struct {
	DatagramsPerSec float64
	KBPerSec        float64
	RecordsPerSec   float64
	InvalidCount    int64
	DroppedCount    int64
	Timestamp       time.Time
}

// PacketStats tracks datagram statistics with thread-safe operations
type PacketStats struct {
	mu             sync.Mutex
	packetCount    int64
	byteCount      int64
	recordCount    int64
	invalidCount   int64
	droppedCount   int64
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

// NewPacketStats creates a new PacketStats instance
func NewPacketStats() *PacketStats {
	now := time.Now()
	return &PacketStats{
		lastReset: now,
		startTime: now,
	}
}

// AddPacket increments datagram count and byte count
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddDropped increments dropped datagram count
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// AddRecords increments decoded edge record count
func (ps *PacketStats) AddRecords(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.recordCount += int64(count)
}

// AddInvalid increments rejected datagram count
func (ps *PacketStats) AddInvalid() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.invalidCount++
}

// GetAndReset returns current stats and resets counters
func (ps *PacketStats) GetAndReset() (packets, bytes, records, invalid, dropped int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	packets = ps.packetCount
	bytes = ps.byteCount
	records = ps.recordCount
	invalid = ps.invalidCount
	dropped = ps.droppedCount

	ps.packetCount = 0
	ps.byteCount = 0
	ps.recordCount = 0
	ps.invalidCount = 0
	ps.droppedCount = 0
	ps.lastReset = now

	return
}

// LogStats logs formatted statistics and stores a snapshot for the status
// surfaces. Quiet intervals log nothing; an idle receiver is the normal case.
func (ps *PacketStats) LogStats() {
	packets, bytes, records, invalid, dropped, duration := ps.GetAndReset()
	if packets == 0 && invalid == 0 && dropped == 0 {
		return
	}

	packetsPerSec := float64(packets) / duration.Seconds()
	kbPerSec := float64(bytes) / duration.Seconds() / 1024
	recordsPerSec := float64(records) / duration.Seconds()

	ps.mu.Lock()
	ps.latestSnapshot = &StatsSnapshot{
		DatagramsPerSec: packetsPerSec,
		KBPerSec:        kbPerSec,
		RecordsPerSec:   recordsPerSec,
		InvalidCount:    invalid,
		DroppedCount:    dropped,
		Timestamp:       time.Now(),
	}
	ps.mu.Unlock()

	logMsg := fmt.Sprintf("Edge stats (/sec): %.2f KB, %.1f datagrams, %.0f records",
		kbPerSec, packetsPerSec, recordsPerSec)
	if invalid > 0 {
		logMsg += fmt.Sprintf(", %d invalid", invalid)
	}
	if dropped > 0 {
		logMsg += fmt.Sprintf(", %d dropped on forward", dropped)
	}

	log.Print(logMsg)
}

// GetUptime returns the time since the stats were created
func (ps *PacketStats) GetUptime() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return time.Since(ps.startTime)
}

// GetLatestSnapshot returns the most recent stats snapshot for the status
// surfaces
func (ps *PacketStats) GetLatestSnapshot() *StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.latestSnapshot == nil {
		return nil
	}
	// Return a copy to avoid race conditions
	snapshot := *ps.latestSnapshot
	return &snapshot
}
