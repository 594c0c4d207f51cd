// Package units provides capture tick-rate constants, parsing, and
// tick/duration conversion shared across the service.
package units

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Counter rates supported by the stock capture adapter firmware, in Hz.
const (
	Rate1MHz uint32 = 1000000
	Rate2MHz uint32 = 2000000
	Rate4MHz uint32 = 4000000
)

// ValidTickRates contains the rates the adapter firmware accepts for T=.
var ValidTickRates = []uint32{Rate1MHz, Rate2MHz, Rate4MHz}

// IsValidTickRate checks if hz is a rate the adapter firmware supports.
func IsValidTickRate(hz uint32) bool {
	for _, r := range ValidTickRates {
		if hz == r {
			return true
		}
	}
	return false
}

// ValidTickRatesString returns the supported rates for error messages.
func ValidTickRatesString() string {
	return "1MHz, 2MHz, 4MHz"
}

// TickInterval returns the duration of one counter tick at hz. Zero in,
// zero out.
func TickInterval(hz uint32) time.Duration {
	if hz == 0 {
		return 0
	}
	return time.Second / time.Duration(hz)
}

// TicksToDuration converts a tick count at the given per-tick interval.
func TicksToDuration(ticks uint64, interval time.Duration) time.Duration {
	return time.Duration(ticks) * interval
}

// DurationToTicks converts a duration to whole ticks at the given per-tick
// interval, truncating toward zero.
func DurationToTicks(d, interval time.Duration) uint64 {
	if interval <= 0 || d <= 0 {
		return 0
	}
	return uint64(d / interval)
}

// ParseTickRate parses a rate like "2000000", "2MHz" or "500kHz" into Hz.
func ParseTickRate(s string) (uint32, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return 0, fmt.Errorf("empty tick rate")
	}
	mult := float64(1)
	switch {
	case strings.HasSuffix(v, "mhz"):
		mult = 1e6
		v = strings.TrimSuffix(v, "mhz")
	case strings.HasSuffix(v, "khz"):
		mult = 1e3
		v = strings.TrimSuffix(v, "khz")
	case strings.HasSuffix(v, "hz"):
		v = strings.TrimSuffix(v, "hz")
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid tick rate %q", s)
	}
	hz := n * mult
	if hz < 1 || hz > float64(^uint32(0)) {
		return 0, fmt.Errorf("tick rate %q out of range", s)
	}
	return uint32(hz), nil
}
