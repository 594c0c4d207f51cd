package edgemux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealEdgeMux opens the capture adapter's serial device and wraps it in an
// EdgeMux. Port settings are validated before the device is touched, so a bad
// config fails without tying up the port.
func NewRealEdgeMux(path string, opts PortOptions) (*EdgeMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}

	return NewEdgeMux[serial.Port](port), nil
}
