package edgenet

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"
)

// forwardQueueDepth is how many datagrams may sit between the receive path
// and the forwarding goroutine before new ones get dropped.
const forwardQueueDepth = 1000

// DropCounter tracks datagrams the forwarder had to drop.
type DropCounter interface {
	AddDropped()
}

// PacketForwarder mirrors raw adapter datagrams to another address, so a
// second host (usually a dev machine) can decode the same traffic live.
// Forwarding is fire-and-forget: a slow or dead destination costs mirrored
// datagrams, never receive throughput.
type PacketForwarder struct {
	conn        *net.UDPConn
	queue       chan []byte
	stats       DropCounter
	logInterval time.Duration
	address     string
}

// NewPacketForwarder dials the destination and prepares the forwarding
// queue. Start must be called before anything is actually sent.
func NewPacketForwarder(addr string, port int, stats DropCounter, logInterval time.Duration) (*PacketForwarder, error) {
	address := fmt.Sprintf("%s:%d", addr, port)
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolve forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("dial forward address: %w", err)
	}

	return &PacketForwarder{
		conn:        conn,
		queue:       make(chan []byte, forwardQueueDepth),
		stats:       stats,
		logInterval: logInterval,
		address:     address,
	}, nil
}

// Start launches the forwarding goroutine. It runs until ctx is cancelled.
func (f *PacketForwarder) Start(ctx context.Context) {
	go f.run(ctx)
	log.Printf("Forwarding adapter datagrams to %s", f.address)
}

// run drains the queue onto the wire. Send failures are counted and reported
// once per log interval rather than per datagram, since an unreachable
// destination would otherwise flood the log.
func (f *PacketForwarder) run(ctx context.Context) {
	failed := 0
	var lastErr error
	ticker := time.NewTicker(f.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case datagram := <-f.queue:
			if _, err := f.conn.Write(datagram); err != nil {
				failed++
				lastErr = err
			}
		case <-ticker.C:
			if failed > 0 {
				log.Printf("\033[93mDropped %d forwarded datagrams due to errors (latest: %v)\033[0m", failed, lastErr)
				failed = 0
				lastErr = nil
			}
		}
	}
}

// ForwardAsync queues a datagram for forwarding without blocking. The buffer
// is copied first: the caller reuses its receive buffer for the next read.
func (f *PacketForwarder) ForwardAsync(datagram []byte) {
	owned := make([]byte, len(datagram))
	copy(owned, datagram)

	select {
	case f.queue <- owned:
	default:
		if f.stats != nil {
			f.stats.AddDropped()
		}
	}
}

// Close tears down the destination connection and the queue.
func (f *PacketForwarder) Close() error {
	close(f.queue)
	return f.conn.Close()
}
