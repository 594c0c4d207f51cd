// Command gen-edgelog synthesizes an edge log from a YAML press scenario.
// The output replays through edge-replay or the UDP listener exactly like a
// capture recorded from live hardware, which makes scripted regression
// fixtures possible without a remote in hand.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/keyfob.report/internal/capture"
	"github.com/banshee-data/keyfob.report/internal/edgemux"
	"github.com/banshee-data/keyfob.report/internal/ev1527"
	"github.com/banshee-data/keyfob.report/internal/units"
)

// Constants
const (
	DEFAULT_REPEATS   = 4
	DEFAULT_GAP_TICKS = 24000
)

// Press is one button press in a scenario: a frame code retransmitted
// repeats times with gap_ticks of idle between bursts, matching how a real
// remote behaves while the button is held.
type Press struct {
	Frame    string `yaml:"frame"`
	Repeats  int    `yaml:"repeats"`
	GapTicks uint32 `yaml:"gap_ticks"`
}

// Scenario is the YAML document gen-edgelog consumes.
type Scenario struct {
	TickRateHz uint32  `yaml:"tick_rate_hz"`
	Presses    []Press `yaml:"presses"`
}

func loadScenario(path string) (*Scenario, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("scenario file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}

	if sc.TickRateHz == 0 {
		sc.TickRateHz = units.Rate2MHz
	}
	if !units.IsValidTickRate(sc.TickRateHz) {
		return nil, fmt.Errorf("tick_rate_hz %d is not supported (use %s)", sc.TickRateHz, units.ValidTickRatesString())
	}
	if len(sc.Presses) == 0 {
		return nil, fmt.Errorf("scenario has no presses")
	}
	for i := range sc.Presses {
		if sc.Presses[i].Repeats == 0 {
			sc.Presses[i].Repeats = DEFAULT_REPEATS
		}
		if sc.Presses[i].GapTicks == 0 {
			sc.Presses[i].GapTicks = DEFAULT_GAP_TICKS
		}
		if _, err := sc.Presses[i].frameCode(); err != nil {
			return nil, fmt.Errorf("press %d: %w", i, err)
		}
	}
	return &sc, nil
}

// frameCode parses the press's frame field as a 24-bit hex code.
func (p Press) frameCode() (uint32, error) {
	s := strings.TrimPrefix(strings.TrimSpace(p.Frame), "0x")
	if s == "" {
		return 0, fmt.Errorf("empty frame code")
	}
	raw, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid frame code %q: %w", p.Frame, err)
	}
	if raw > 0xFFFFFF {
		return 0, fmt.Errorf("frame code %q exceeds 24 bits", p.Frame)
	}
	return uint32(raw), nil
}

// buildEdgeLog renders the scenario as edge-log text. The first burst of
// every press opens with a saturated gap so the decoder sees each press as
// arriving out of silence; later bursts of the same press carry the
// configured inter-burst gap.
func buildEdgeLog(sc *Scenario, source string) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "# generated by gen-edgelog at %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "# scenario: %s\n", source)
	fmt.Fprintf(&b, "# tick_rate_hz: %d\n", sc.TickRateHz)

	bursts := 0
	for _, press := range sc.Presses {
		raw, err := press.frameCode()
		if err != nil {
			// loadScenario already validated every press.
			continue
		}
		for burst := 0; burst < press.Repeats; burst++ {
			leadIn := ^ev1527.Tick(0)
			if burst > 0 {
				leadIn = ev1527.Tick(press.GapTicks)
			}
			b.WriteString(edgemux.EdgeLines(capture.FrameRecords(raw, leadIn)))
			bursts++
		}
	}
	return b.String(), bursts
}

// Main
func main() {
	scenarioPath := flag.String("scenario", "", "YAML press scenario to synthesize (required)")
	output := flag.String("o", "capture.edgelog", "output edge log path")
	flag.Parse()

	if *scenarioPath == "" {
		log.Fatal("Error: -scenario flag is required")
	}

	sc, err := loadScenario(*scenarioPath)
	if err != nil {
		log.Fatalf("Error loading scenario: %v", err)
	}

	content, bursts := buildEdgeLog(sc, *scenarioPath)
	if err := os.WriteFile(*output, []byte(content), 0644); err != nil {
		log.Fatalf("Error writing edge log: %v", err)
	}

	log.Printf("✓ Created: %s (%d presses, %d bursts at %d Hz)", *output, len(sc.Presses), bursts, sc.TickRateHz)
}
