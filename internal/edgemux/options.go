package edgemux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// PortOptions carries the line settings for one capture adapter connection.
// Field names and JSON tags line up with the adapter config rows the API
// hands out, so a stored config opens a port without translation.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize fills unset fields with the adapter firmware defaults (115200
// 8N1) and rejects settings the serial layer cannot express.
func (o PortOptions) Normalize() (PortOptions, error) {
	out := o
	if out.BaudRate <= 0 {
		out.BaudRate = 115200
	}
	if out.DataBits == 0 {
		out.DataBits = 8
	}
	if out.StopBits == 0 {
		out.StopBits = 1
	}

	if out.DataBits < 5 || out.DataBits > 8 {
		return out, fmt.Errorf("data bits %d out of range 5-8", out.DataBits)
	}
	if out.StopBits != 1 && out.StopBits != 2 {
		return out, fmt.Errorf("stop bits %d: only 1 or 2 supported", out.StopBits)
	}

	parity, ok := canonicalParity(out.Parity)
	if !ok {
		return out, fmt.Errorf("parity %q: want N, E or O", o.Parity)
	}
	out.Parity = parity
	return out, nil
}

// canonicalParity folds the accepted spellings down to the single-letter
// form stored in configs.
func canonicalParity(s string) (string, bool) {
	switch strings.TrimSpace(strings.ToUpper(s)) {
	case "", "N", "NONE":
		return "N", true
	case "E", "EVEN":
		return "E", true
	case "O", "ODD":
		return "O", true
	}
	return "", false
}

// Equal reports whether two option sets normalize to the same line settings.
// Options that fail to normalize compare unequal to everything.
func (o PortOptions) Equal(other PortOptions) bool {
	a, errA := o.Normalize()
	b, errB := other.Normalize()
	if errA != nil || errB != nil {
		return false
	}
	return a == b
}

// SerialMode translates the options into go.bug.st/serial's Mode. Normalize
// runs first, so the switches only ever see canonical values. The stop bit
// count cannot be cast directly: the library's constants are iota-ordered,
// with 1 naming one-and-a-half stop bits.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}
