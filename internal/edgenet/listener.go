package edgenet

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/banshee-data/keyfob.report/internal/capture"
)

// DefaultUDPPort is the destination port network adapters send datagrams to
// out of the box (decimal of the "E1" magic).
const DefaultUDPPort = 17713

// PacketStatsInterface provides datagram statistics management
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	AddRecords(count int)
	AddInvalid()
	LogStats()
}

// RecordSink receives decoded edge records. *capture.Bus satisfies it.
type RecordSink interface {
	Offer(rec capture.Record)
}

// UDPListener receives adapter datagrams, decodes them and offers the edge
// records to a sink, with configurable statistics and raw forwarding
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	conn        UDPSocket
	factory     UDPSocketFactory
	stats       PacketStatsInterface
	forwarder   *PacketForwarder
	sink        RecordSink
	udpPort     int
}

// UDPListenerConfig collects everything a listener can be wired with. Only
// Address is required; see NewUDPListener for the zero-value defaults.
type UDPListenerConfig struct {
	Address       string
	RcvBuf        int
	LogInterval   time.Duration
	Stats         PacketStatsInterface
	Forwarder     *PacketForwarder
	Sink          RecordSink
	SocketFactory UDPSocketFactory
	UDPPort       int // UDP port for normal operation (also used for PCAP filtering)
}

// NewUDPListener builds a listener, filling in what the config leaves zero:
// nil stats become a no-op collector, a nil factory binds real sockets, and
// the stats log interval defaults to a minute.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	var stats PacketStatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	factory := config.SocketFactory
	if factory == nil {
		factory = RealUDPSocketFactory{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		factory:     factory,
		stats:       stats,
		forwarder:   config.Forwarder,
		sink:        config.Sink,
		udpPort:     config.UDPPort,
	}
}

// noopStats swallows statistics so the receive path never has to check for a
// nil collector.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int)  {}
func (n *noopStats) AddDropped()          {}
func (n *noopStats) AddRecords(count int) {}
func (n *noopStats) AddInvalid()          {}
func (n *noopStats) LogStats()            {}

// Start binds the socket and receives datagrams until ctx is cancelled.
// Reads run under a short deadline so cancellation is noticed within 100ms
// even when the adapter has gone quiet.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	// A burst of edge records can arrive faster than the decoder drains
	// them; a large kernel buffer rides it out.
	if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
		log.Printf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
	}

	log.Printf("Edge UDP listener started on %s with receive buffer %d bytes", l.address, l.rcvBuf)

	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}

	go l.startStatsLogging(ctx)

	// A full datagram is 1279 bytes; leave some margin
	buffer := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			log.Print("Edge UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
			if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
				log.Printf("Warning: failed to set read deadline: %v", err)
			}

			n, addr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("UDP read error: %v", err)
				continue
			}

			packet := buffer[:n]
			if err := l.handlePacket(packet); err != nil {
				log.Printf("Error handling datagram from %v: %v", addr, err)
			}
		}
	}
}

// startStatsLogging reports once shortly after startup, so a misconfigured
// adapter shows up in the log quickly, then settles into the configured
// interval.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// handlePacket accounts for one datagram, mirrors it to the forwarder, and
// offers its edge records to the sink. The raw bytes are forwarded even when
// parsing fails, so a mirror target sees exactly what the wire carried.
func (l *UDPListener) handlePacket(packet []byte) error {
	l.stats.AddPacket(len(packet))

	if l.forwarder != nil {
		l.forwarder.ForwardAsync(packet)
	}

	records, err := ParseDatagram(packet)
	if err != nil {
		l.stats.AddInvalid()
		return err
	}

	l.stats.AddRecords(len(records))

	if l.sink != nil {
		for _, rec := range records {
			l.sink.Offer(rec)
		}
	}

	return nil
}

// Close releases the socket. Safe to call before Start.
func (l *UDPListener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
