//go:build pcap
// +build pcap

package edgenet

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// ReadPCAPFile replays adapter datagrams out of a capture file through the
// same parse-and-offer path the live listener uses. A non-nil forwarder
// additionally mirrors each datagram to its destination. Only built with the
// 'pcap' tag, since gopacket/pcap needs libpcap at link time.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, sink RecordSink, stats PacketStatsInterface, forwarder *PacketForwarder) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("open pcap %s: %w", pcapFile, err)
	}
	defer handle.Close()

	// Everything except the adapter's UDP stream is noise here.
	filter := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("set BPF filter %q: %w", filter, err)
	}
	log.Printf("PCAP BPF filter set: %s", filter)

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	packets := 0
	records := 0
	started := time.Now()

	for {
		select {
		case <-ctx.Done():
			log.Printf("PCAP replay cancelled after %d packets", packets)
			return ctx.Err()

		case packet := <-source.Packets():
			if packet == nil {
				log.Printf("PCAP replay complete: %d packets, %d edge records in %v",
					packets, records, time.Since(started))
				return nil
			}
			packets++

			payload := udpPayload(packet)
			if len(payload) == 0 {
				continue
			}
			if stats != nil {
				stats.AddPacket(len(payload))
			}
			if forwarder != nil {
				forwarder.ForwardAsync(payload)
			}

			recs, err := ParseDatagram(payload)
			if err != nil {
				if stats != nil {
					stats.AddInvalid()
				}
				log.Printf("PCAP packet %d: %v", packets, err)
				continue
			}
			records += len(recs)
			if stats != nil {
				stats.AddRecords(len(recs))
			}
			if sink != nil {
				for _, rec := range recs {
					sink.Offer(rec)
				}
			}

			if packets%10000 == 0 {
				elapsed := time.Since(started)
				log.Printf("PCAP progress: %d packets in %v (%.0f pkt/s)",
					packets, elapsed, float64(packets)/elapsed.Seconds())
			}
		}
	}
}

// udpPayload digs the UDP payload out of a captured packet. The BPF filter
// already restricts the stream to UDP, so a miss just means a truncated or
// malformed capture entry.
func udpPayload(packet gopacket.Packet) []byte {
	layer := packet.Layer(layers.LayerTypeUDP)
	if layer == nil {
		return nil
	}
	udp, ok := layer.(*layers.UDP)
	if !ok {
		return nil
	}
	return udp.Payload
}
