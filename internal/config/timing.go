package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/keyfob.report/internal/ev1527"
)

// DefaultConfigPath is the path to the canonical timing defaults file.
// This is the single source of truth for all default timing values.
const DefaultConfigPath = "config/timing.defaults.json"

// TimingConfig represents the root configuration for decoder timing and
// press grouping. The schema matches the /api/config endpoint so the same
// JSON vocabulary serves startup configuration and API readouts.
type TimingConfig struct {
	// Pulse classification params
	TickNanos            *int64  `json:"tick_ns,omitempty"`
	PreambleHighMinTicks *uint32 `json:"preamble_high_min_ticks,omitempty"`
	PreambleHighMaxTicks *uint32 `json:"preamble_high_max_ticks,omitempty"`
	PreambleRatioMin     *uint32 `json:"preamble_ratio_min,omitempty"`
	PreambleRatioMax     *uint32 `json:"preamble_ratio_max,omitempty"`
	DataPulseMinTicks    *uint32 `json:"data_pulse_min_ticks,omitempty"`
	DataPulseMaxTicks    *uint32 `json:"data_pulse_max_ticks,omitempty"`
	BitThresholdNum      *uint32 `json:"bit_threshold_num,omitempty"`
	BitThresholdDen      *uint32 `json:"bit_threshold_den,omitempty"`

	// Press grouping params
	PressGap       *string `json:"press_gap,omitempty"`       // duration string like "400ms"
	WorkerInterval *string `json:"worker_interval,omitempty"` // duration string like "1m"
	WorkerWindow   *string `json:"worker_window,omitempty"`   // duration string like "5m"
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt64(v int64) *int64    { return &v }
func ptrUint32(v uint32) *uint32 { return &v }

// DefaultTimingConfig returns a TimingConfig with every field populated with
// the canonical defaults: stock EV1527 pulse bounds at a 2 MHz counter and
// the standard press grouping schedule.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		TickNanos:            ptrInt64(500),
		PreambleHighMinTicks: ptrUint32(320),
		PreambleHighMaxTicks: ptrUint32(1280),
		PreambleRatioMin:     ptrUint32(25),
		PreambleRatioMax:     ptrUint32(40),
		DataPulseMinTicks:    ptrUint32(450),
		DataPulseMaxTicks:    ptrUint32(8500),
		BitThresholdNum:      ptrUint32(3),
		BitThresholdDen:      ptrUint32(2),
		PressGap:             ptrString("400ms"),
		WorkerInterval:       ptrString("1m"),
		WorkerWindow:         ptrString("5m"),
	}
}

// LoadTimingConfig loads a TimingConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file fall back to defaults via
// the Get* methods, so partial configs are safe.
func LoadTimingConfig(path string) (*TimingConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into an empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := &TimingConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical timing defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *TimingConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/
	}
	for _, path := range candidates {
		if cfg, err := LoadTimingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TimingConfig) Validate() error {
	// Validate PressGap can be parsed if set
	if c.PressGap != nil && *c.PressGap != "" {
		d, err := time.ParseDuration(*c.PressGap)
		if err != nil {
			return fmt.Errorf("invalid press_gap '%s': %w", *c.PressGap, err)
		}
		if d <= 0 {
			return fmt.Errorf("press_gap must be positive, got %s", *c.PressGap)
		}
	}

	// Validate WorkerInterval can be parsed if set
	if c.WorkerInterval != nil && *c.WorkerInterval != "" {
		if _, err := time.ParseDuration(*c.WorkerInterval); err != nil {
			return fmt.Errorf("invalid worker_interval '%s': %w", *c.WorkerInterval, err)
		}
	}

	// Validate WorkerWindow can be parsed if set
	if c.WorkerWindow != nil && *c.WorkerWindow != "" {
		if _, err := time.ParseDuration(*c.WorkerWindow); err != nil {
			return fmt.Errorf("invalid worker_window '%s': %w", *c.WorkerWindow, err)
		}
	}

	// The assembled timing catches inverted windows, zero threshold terms
	// and bad tick intervals in one place.
	if err := c.Timing().Validate(); err != nil {
		return err
	}

	return nil
}

// GetTickInterval parses and returns the counter tick interval.
func (c *TimingConfig) GetTickInterval() time.Duration {
	if c.TickNanos == nil || *c.TickNanos == 0 {
		return 500 * time.Nanosecond // default: 2 MHz counter
	}
	return time.Duration(*c.TickNanos) * time.Nanosecond
}

// GetPreambleHighMinTicks returns the preamble_high_min_ticks value or the default.
func (c *TimingConfig) GetPreambleHighMinTicks() ev1527.Tick {
	if c.PreambleHighMinTicks == nil {
		return 320
	}
	return ev1527.Tick(*c.PreambleHighMinTicks)
}

// GetPreambleHighMaxTicks returns the preamble_high_max_ticks value or the default.
func (c *TimingConfig) GetPreambleHighMaxTicks() ev1527.Tick {
	if c.PreambleHighMaxTicks == nil {
		return 1280
	}
	return ev1527.Tick(*c.PreambleHighMaxTicks)
}

// GetPreambleRatioMin returns the preamble_ratio_min value or the default.
func (c *TimingConfig) GetPreambleRatioMin() uint32 {
	if c.PreambleRatioMin == nil {
		return 25
	}
	return *c.PreambleRatioMin
}

// GetPreambleRatioMax returns the preamble_ratio_max value or the default.
func (c *TimingConfig) GetPreambleRatioMax() uint32 {
	if c.PreambleRatioMax == nil {
		return 40
	}
	return *c.PreambleRatioMax
}

// GetDataPulseMinTicks returns the data_pulse_min_ticks value or the default.
func (c *TimingConfig) GetDataPulseMinTicks() ev1527.Tick {
	if c.DataPulseMinTicks == nil {
		return 450
	}
	return ev1527.Tick(*c.DataPulseMinTicks)
}

// GetDataPulseMaxTicks returns the data_pulse_max_ticks value or the default.
func (c *TimingConfig) GetDataPulseMaxTicks() ev1527.Tick {
	if c.DataPulseMaxTicks == nil {
		return 8500
	}
	return ev1527.Tick(*c.DataPulseMaxTicks)
}

// GetBitThresholdNum returns the bit_threshold_num value or the default.
func (c *TimingConfig) GetBitThresholdNum() uint32 {
	if c.BitThresholdNum == nil {
		return 3
	}
	return *c.BitThresholdNum
}

// GetBitThresholdDen returns the bit_threshold_den value or the default.
func (c *TimingConfig) GetBitThresholdDen() uint32 {
	if c.BitThresholdDen == nil {
		return 2
	}
	return *c.BitThresholdDen
}

// GetPressGap parses and returns the press gap as a time.Duration.
func (c *TimingConfig) GetPressGap() time.Duration {
	if c.PressGap == nil || *c.PressGap == "" {
		return 400 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.PressGap)
	if err != nil {
		return 400 * time.Millisecond // default on parse error
	}
	return d
}

// GetWorkerInterval parses and returns the press worker run interval.
func (c *TimingConfig) GetWorkerInterval() time.Duration {
	if c.WorkerInterval == nil || *c.WorkerInterval == "" {
		return time.Minute // default
	}
	d, err := time.ParseDuration(*c.WorkerInterval)
	if err != nil {
		return time.Minute // default on parse error
	}
	return d
}

// GetWorkerWindow parses and returns the press worker lookback window.
func (c *TimingConfig) GetWorkerWindow() time.Duration {
	if c.WorkerWindow == nil || *c.WorkerWindow == "" {
		return 5 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.WorkerWindow)
	if err != nil {
		return 5 * time.Minute // default on parse error
	}
	return d
}

// Timing assembles the decoder timing constants from the configured values,
// falling back to the stock defaults for anything unset.
func (c *TimingConfig) Timing() ev1527.Timing {
	return ev1527.Timing{
		TickInterval:     c.GetTickInterval(),
		PreambleHighMin:  c.GetPreambleHighMinTicks(),
		PreambleHighMax:  c.GetPreambleHighMaxTicks(),
		PreambleRatioMin: c.GetPreambleRatioMin(),
		PreambleRatioMax: c.GetPreambleRatioMax(),
		DataPulseMin:     c.GetDataPulseMinTicks(),
		DataPulseMax:     c.GetDataPulseMaxTicks(),
		BitThresholdNum:  c.GetBitThresholdNum(),
		BitThresholdDen:  c.GetBitThresholdDen(),
	}
}
