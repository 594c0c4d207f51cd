//go:build !pcap
// +build !pcap

package edgenet

import (
	"context"
	"strings"
	"testing"
)

// TestReadPCAPFile_Stub verifies the stub returns a helpful error when built
// without pcap support.
func TestReadPCAPFile_Stub(t *testing.T) {
	err := ReadPCAPFile(context.Background(), "capture.pcap", DefaultUDPPort, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error from PCAP stub, got nil")
	}
	if !strings.Contains(err.Error(), "-tags=pcap") {
		t.Errorf("expected error to mention the pcap build tag, got %q", err.Error())
	}
}
