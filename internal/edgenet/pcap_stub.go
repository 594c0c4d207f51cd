//go:build !pcap
// +build !pcap

package edgenet

import (
	"context"
	"errors"
)

// ReadPCAPFile in the default build refuses to run: capture replay links
// against libpcap, which most deployments of the daemon never need.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, sink RecordSink, stats PacketStatsInterface, forwarder *PacketForwarder) error {
	return errors.New("pcap replay not compiled in; rebuild with -tags=pcap")
}
