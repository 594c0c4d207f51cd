package edgemux

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/keyfob.report/internal/capture"
	"github.com/banshee-data/keyfob.report/internal/ev1527"
)

// MockSerialPort pairs a synthetic edge stream with a file that captures
// whatever commands get written to the adapter.
type MockSerialPort struct {
	io.Reader
	io.WriteCloser
}

func (m *MockSerialPort) Write(p []byte) (n int, err error) {
	return m.WriteCloser.Write(p)
}

// burstRepeats is how many times the synthetic remote retransmits each frame
// per press, matching how a held EV1527 remote behaves.
const burstRepeats = 4

// interBurstGap is the idle between retransmissions of the same press, in
// capture ticks.
const interBurstGap ev1527.Tick = 24000

// NewMockEdgeMux creates an EdgeMux instance backed by a synthetic capture
// adapter that transmits one remote press per second, cycling through the
// given frame codes. Commands written to the mock adapter land in a temp
// file for inspection.
func NewMockEdgeMux(raws ...uint32) *EdgeMux[*MockSerialPort] {
	if len(raws) == 0 {
		raws = []uint32{0x8BEEF1}
	}

	r, w := io.Pipe()
	f, err := os.CreateTemp(".", "mock_capture_adapter")
	if err != nil {
		panic("failed to create temp file for mock capture adapter: " + err.Error())
	}
	log.Printf("Writing mock capture adapter received input at %s", f.Name())

	mockPort := &MockSerialPort{
		Reader:      r,
		WriteCloser: f,
	}

	// transmit a press periodically to simulate adapter input
	go func() {
		defer w.Close()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		press := 0
		for range ticker.C {
			raw := raws[press%len(raws)]
			press++
			for burst := 0; burst < burstRepeats; burst++ {
				// the first burst opens after a long silence, so
				// its lead-in carries a saturated counter
				leadIn := ^ev1527.Tick(0)
				if burst > 0 {
					leadIn = interBurstGap
				}
				if _, err := io.WriteString(w, EdgeLines(capture.FrameRecords(raw, leadIn))); err != nil {
					return
				}
			}
		}
	}()

	return NewEdgeMux(mockPort)
}
