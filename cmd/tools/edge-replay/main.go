// Command edge-replay feeds a recorded edge log through the decoder and
// prints every frame it contains.
//
// This tool runs the same decode path as the gateway, so a capture recorded
// in the field can be reproduced and inspected on a desk.
//
// Usage:
//
//go run ./cmd/tools/edge-replay [flags]
//
// Flags:
//
//-log       Path to .edgelog file to replay (required)
//-rate      Counter tick rate of the capture (default: 2MHz)
//-speed     Pacing: 1 real time, 2 double speed, 0 unpaced (default: 0)
//-config    Timing config JSON (default: built-in defaults)
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/keyfob.report/internal/capture"
	"github.com/banshee-data/keyfob.report/internal/config"
	"github.com/banshee-data/keyfob.report/internal/edgenet"
	"github.com/banshee-data/keyfob.report/internal/ev1527"
	"github.com/banshee-data/keyfob.report/internal/units"
)

// replay decodes records through a fresh decoder, writing one line per frame
// to w. The decoder is re-armed after every frame so multi-press logs decode
// end to end.
func replay(ctx context.Context, records []capture.Record, timing ev1527.Timing, rate uint32, speed float64, w io.Writer) (ev1527.Stats, error) {
	bus := capture.NewBus()
	decoder, err := ev1527.NewDecoder(timing, bus, bus)
	if err != nil {
		return ev1527.Stats{}, err
	}

	frames := 0
	decoder.SetFrameHandler(func(f ev1527.Frame) {
		frames++
		fmt.Fprintf(w, "%4d  raw=0x%06X %s\n", frames, f.Raw, f)
		decoder.Enable()
	})
	decoder.Enable()

	err = edgenet.ReplayRecords(ctx, records, bus, rate, speed)
	return decoder.Stats(), err
}

// Main
func main() {
	logPath := flag.String("log", "", "Path to .edgelog file (required)")
	rateFlag := flag.String("rate", "2MHz", "Counter tick rate of the capture")
	speed := flag.Float64("speed", 0, "Pacing: 1 real time, 2 double speed, 0 unpaced")
	configPath := flag.String("config", "", "Timing config JSON (default: built-in defaults)")
	flag.Parse()

	if *logPath == "" {
		log.Fatal("Error: -log flag is required")
	}

	rate, err := units.ParseTickRate(*rateFlag)
	if err != nil {
		log.Fatalf("Invalid -rate: %v", err)
	}
	if !units.IsValidTickRate(rate) {
		log.Fatalf("Unsupported tick rate %d Hz (use %s)", rate, units.ValidTickRatesString())
	}

	timingCfg := config.DefaultTimingConfig()
	if *configPath != "" {
		timingCfg, err = config.LoadTimingConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load timing config: %v", err)
		}
	}
	timing := timingCfg.Timing()
	if timing.TickRate() != rate {
		log.Printf("Warning: timing config expects %d Hz ticks but the capture is %d Hz; classification thresholds may be off", timing.TickRate(), rate)
	}

	records, err := edgenet.ReadEdgeLogFile(*logPath)
	if err != nil {
		log.Fatalf("Failed to load edge log: %v", err)
	}
	log.Printf("Loaded %d edge records from %s", len(records), *logPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := replay(ctx, records, timing, rate, *speed, os.Stdout)
	if err != nil && err != context.Canceled {
		log.Fatalf("Replay failed: %v", err)
	}
	log.Printf("✓ Replay finished: %d frames, %d preambles, %d invalid pulses",
		stats.Frames, stats.Preambles, stats.InvalidPulses)
}
