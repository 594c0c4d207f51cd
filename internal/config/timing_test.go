package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTimingConfig(t *testing.T) {
	cfg := DefaultTimingConfig()

	// Test that defaults are set via pointers
	if cfg.TickNanos == nil || *cfg.TickNanos != 500 {
		t.Errorf("Expected TickNanos 500, got %v", cfg.TickNanos)
	}
	if cfg.PreambleHighMinTicks == nil || *cfg.PreambleHighMinTicks != 320 {
		t.Errorf("Expected PreambleHighMinTicks 320, got %v", cfg.PreambleHighMinTicks)
	}
	if cfg.DataPulseMaxTicks == nil || *cfg.DataPulseMaxTicks != 8500 {
		t.Errorf("Expected DataPulseMaxTicks 8500, got %v", cfg.DataPulseMaxTicks)
	}
	if cfg.PressGap == nil || *cfg.PressGap != "400ms" {
		t.Errorf("Expected PressGap '400ms', got %v", cfg.PressGap)
	}
	if cfg.WorkerInterval == nil || *cfg.WorkerInterval != "1m" {
		t.Errorf("Expected WorkerInterval '1m', got %v", cfg.WorkerInterval)
	}

	// Test getter methods
	if cfg.GetTickInterval() != 500*time.Nanosecond {
		t.Errorf("GetTickInterval() = %v, want 500ns", cfg.GetTickInterval())
	}
	if cfg.GetPressGap() != 400*time.Millisecond {
		t.Errorf("GetPressGap() = %v, want 400ms", cfg.GetPressGap())
	}
	if cfg.GetBitThresholdNum() != 3 || cfg.GetBitThresholdDen() != 2 {
		t.Errorf("bit threshold = %d/%d, want 3/2",
			cfg.GetBitThresholdNum(), cfg.GetBitThresholdDen())
	}
}

func TestTimingAssembly(t *testing.T) {
	cfg := DefaultTimingConfig()
	timing := cfg.Timing()

	if err := timing.Validate(); err != nil {
		t.Fatalf("default timing does not validate: %v", err)
	}
	if timing.TickRate() != 2000000 {
		t.Errorf("TickRate() = %d, want 2000000", timing.TickRate())
	}
	if timing.PreambleHighMin != 320 || timing.PreambleHighMax != 1280 {
		t.Errorf("preamble window = [%d,%d], want [320,1280]",
			timing.PreambleHighMin, timing.PreambleHighMax)
	}
}

func TestLoadTimingConfig(t *testing.T) {
	// Create temporary directory
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	// Write test config with flat schema
	testJSON := `{
  "tick_ns": 1000,
  "preamble_high_min_ticks": 160,
  "preamble_high_max_ticks": 640,
  "press_gap": "250ms",
  "worker_interval": "30s"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	// Load the config
	cfg, err := LoadTimingConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify values
	if cfg.TickNanos == nil || *cfg.TickNanos != 1000 {
		t.Errorf("Expected TickNanos 1000, got %v", cfg.TickNanos)
	}
	if cfg.PreambleHighMinTicks == nil || *cfg.PreambleHighMinTicks != 160 {
		t.Errorf("Expected PreambleHighMinTicks 160, got %v", cfg.PreambleHighMinTicks)
	}
	if cfg.PressGap == nil || *cfg.PressGap != "250ms" {
		t.Errorf("Expected PressGap '250ms', got %v", cfg.PressGap)
	}
	if cfg.WorkerInterval == nil || *cfg.WorkerInterval != "30s" {
		t.Errorf("Expected WorkerInterval '30s', got %v", cfg.WorkerInterval)
	}
}

func TestLoadTimingConfigMissing(t *testing.T) {
	_, err := LoadTimingConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTimingConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	// Write invalid JSON
	invalidJSON := `{
  "tick_ns": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTimingConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TimingConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     DefaultTimingConfig(),
			wantErr: false,
		},
		{
			name:    "empty config is valid",
			cfg:     &TimingConfig{},
			wantErr: false,
		},
		{
			name: "inverted preamble window",
			cfg: &TimingConfig{
				PreambleHighMinTicks: ptrUint32(1280),
				PreambleHighMaxTicks: ptrUint32(320),
			},
			wantErr: true,
		},
		{
			name: "inverted data pulse window",
			cfg: &TimingConfig{
				DataPulseMinTicks: ptrUint32(9000),
				DataPulseMaxTicks: ptrUint32(450),
			},
			wantErr: true,
		},
		{
			name: "zero bit threshold denominator",
			cfg: &TimingConfig{
				BitThresholdDen: ptrUint32(0),
			},
			wantErr: true,
		},
		{
			name: "invalid press gap",
			cfg: &TimingConfig{
				PressGap: ptrString("invalid"),
			},
			wantErr: true,
		},
		{
			name: "negative press gap",
			cfg: &TimingConfig{
				PressGap: ptrString("-1s"),
			},
			wantErr: true,
		},
		{
			name: "invalid worker interval",
			cfg: &TimingConfig{
				WorkerInterval: ptrString("invalid"),
			},
			wantErr: true,
		},
		{
			name: "invalid worker window",
			cfg: &TimingConfig{
				WorkerWindow: ptrString("invalid"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetPressGap(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TimingConfig
		want time.Duration
	}{
		{
			name: "400 milliseconds",
			cfg: &TimingConfig{
				PressGap: ptrString("400ms"),
			},
			want: 400 * time.Millisecond,
		},
		{
			name: "1 second",
			cfg: &TimingConfig{
				PressGap: ptrString("1s"),
			},
			want: 1 * time.Second,
		},
		{
			name: "nil pointer returns default",
			cfg:  &TimingConfig{},
			want: 400 * time.Millisecond,
		},
		{
			name: "empty string returns default",
			cfg: &TimingConfig{
				PressGap: ptrString(""),
			},
			want: 400 * time.Millisecond,
		},
		{
			name: "invalid duration returns default",
			cfg: &TimingConfig{
				PressGap: ptrString("invalid"),
			},
			want: 400 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetPressGap()
			if got != tt.want {
				t.Errorf("GetPressGap() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTimingConfig("../../config/timing.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if cfg.GetTickInterval() != 500*time.Nanosecond {
		t.Errorf("Expected 500ns, got %v", cfg.GetTickInterval())
	}
	if cfg.GetPressGap() != 400*time.Millisecond {
		t.Errorf("Expected 400ms, got %v", cfg.GetPressGap())
	}
}

func TestLoadExampleConfigFile(t *testing.T) {
	cfg, err := LoadTimingConfig("../../config/timing.example.json")
	if err != nil {
		t.Fatalf("Failed to load example: %v", err)
	}
	if cfg.Timing().TickRate() != 1000000 {
		t.Errorf("Expected 1MHz tick rate, got %d", cfg.Timing().TickRate())
	}
	if cfg.GetPressGap() != 500*time.Millisecond {
		t.Errorf("Expected 500ms, got %v", cfg.GetPressGap())
	}
}

func TestLoadTimingConfigPartial(t *testing.T) {
	// Partial config: only override the press gap; everything else keeps defaults.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	partialJSON := `{
  "press_gap": "800ms"
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTimingConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	// Overridden value
	if cfg.GetPressGap() != 800*time.Millisecond {
		t.Errorf("Expected overridden PressGap 800ms, got %v", cfg.GetPressGap())
	}
	// Default values should be preserved
	if cfg.GetTickInterval() != 500*time.Nanosecond {
		t.Errorf("Expected default TickInterval 500ns, got %v", cfg.GetTickInterval())
	}
	if cfg.GetWorkerInterval() != time.Minute {
		t.Errorf("Expected default WorkerInterval 1m, got %v", cfg.GetWorkerInterval())
	}
	if cfg.GetDataPulseMaxTicks() != 8500 {
		t.Errorf("Expected default DataPulseMaxTicks 8500, got %d", cfg.GetDataPulseMaxTicks())
	}
}

func TestLoadTimingConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTimingConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTimingConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	// Create a file larger than 1MB
	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTimingConfig(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestAllTimingParams(t *testing.T) {
	// Test that all tunable parameters can be set via JSON
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "all_params.json")

	allParamsJSON := `{
  "tick_ns": 250,
  "preamble_high_min_ticks": 640,
  "preamble_high_max_ticks": 2560,
  "preamble_ratio_min": 20,
  "preamble_ratio_max": 45,
  "data_pulse_min_ticks": 900,
  "data_pulse_max_ticks": 17000,
  "bit_threshold_num": 2,
  "bit_threshold_den": 1,
  "press_gap": "300ms",
  "worker_interval": "45s",
  "worker_window": "10m"
}`
	if err := os.WriteFile(configPath, []byte(allParamsJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTimingConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify all fields are loaded correctly
	if cfg.TickNanos == nil || *cfg.TickNanos != 250 {
		t.Errorf("TickNanos = %v, want 250", cfg.TickNanos)
	}
	if cfg.PreambleHighMinTicks == nil || *cfg.PreambleHighMinTicks != 640 {
		t.Errorf("PreambleHighMinTicks = %v, want 640", cfg.PreambleHighMinTicks)
	}
	if cfg.PreambleHighMaxTicks == nil || *cfg.PreambleHighMaxTicks != 2560 {
		t.Errorf("PreambleHighMaxTicks = %v, want 2560", cfg.PreambleHighMaxTicks)
	}
	if cfg.PreambleRatioMin == nil || *cfg.PreambleRatioMin != 20 {
		t.Errorf("PreambleRatioMin = %v, want 20", cfg.PreambleRatioMin)
	}
	if cfg.PreambleRatioMax == nil || *cfg.PreambleRatioMax != 45 {
		t.Errorf("PreambleRatioMax = %v, want 45", cfg.PreambleRatioMax)
	}
	if cfg.DataPulseMinTicks == nil || *cfg.DataPulseMinTicks != 900 {
		t.Errorf("DataPulseMinTicks = %v, want 900", cfg.DataPulseMinTicks)
	}
	if cfg.DataPulseMaxTicks == nil || *cfg.DataPulseMaxTicks != 17000 {
		t.Errorf("DataPulseMaxTicks = %v, want 17000", cfg.DataPulseMaxTicks)
	}
	if cfg.BitThresholdNum == nil || *cfg.BitThresholdNum != 2 {
		t.Errorf("BitThresholdNum = %v, want 2", cfg.BitThresholdNum)
	}
	if cfg.BitThresholdDen == nil || *cfg.BitThresholdDen != 1 {
		t.Errorf("BitThresholdDen = %v, want 1", cfg.BitThresholdDen)
	}
	if cfg.PressGap == nil || *cfg.PressGap != "300ms" {
		t.Errorf("PressGap = %v, want '300ms'", cfg.PressGap)
	}
	if cfg.WorkerInterval == nil || *cfg.WorkerInterval != "45s" {
		t.Errorf("WorkerInterval = %v, want '45s'", cfg.WorkerInterval)
	}
	if cfg.WorkerWindow == nil || *cfg.WorkerWindow != "10m" {
		t.Errorf("WorkerWindow = %v, want '10m'", cfg.WorkerWindow)
	}

	// The assembled timing reflects the overrides.
	timing := cfg.Timing()
	if timing.TickRate() != 4000000 {
		t.Errorf("TickRate() = %d, want 4000000", timing.TickRate())
	}
}

func TestGetterDefaults(t *testing.T) {
	// Test that getter methods return expected defaults when pointers are nil
	cfg := &TimingConfig{} // empty config

	if cfg.GetTickInterval() != 500*time.Nanosecond {
		t.Errorf("GetTickInterval() = %v, want 500ns", cfg.GetTickInterval())
	}
	if cfg.GetPreambleHighMinTicks() != 320 {
		t.Errorf("GetPreambleHighMinTicks() = %d, want 320", cfg.GetPreambleHighMinTicks())
	}
	if cfg.GetPreambleHighMaxTicks() != 1280 {
		t.Errorf("GetPreambleHighMaxTicks() = %d, want 1280", cfg.GetPreambleHighMaxTicks())
	}
	if cfg.GetPreambleRatioMin() != 25 || cfg.GetPreambleRatioMax() != 40 {
		t.Errorf("preamble ratio = [%d,%d], want [25,40]",
			cfg.GetPreambleRatioMin(), cfg.GetPreambleRatioMax())
	}
	if cfg.GetDataPulseMinTicks() != 450 || cfg.GetDataPulseMaxTicks() != 8500 {
		t.Errorf("data pulse window = [%d,%d], want [450,8500]",
			cfg.GetDataPulseMinTicks(), cfg.GetDataPulseMaxTicks())
	}
	if cfg.GetPressGap() != 400*time.Millisecond {
		t.Errorf("GetPressGap() = %v, want 400ms", cfg.GetPressGap())
	}
	if cfg.GetWorkerInterval() != time.Minute {
		t.Errorf("GetWorkerInterval() = %v, want 1m", cfg.GetWorkerInterval())
	}
	if cfg.GetWorkerWindow() != 5*time.Minute {
		t.Errorf("GetWorkerWindow() = %v, want 5m", cfg.GetWorkerWindow())
	}
}
