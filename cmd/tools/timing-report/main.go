// Command timing-report summarises the pulse widths in a recorded edge log.
//
// The report shows how every pulse pair classifies under a timing config and
// where the HIGH and LOW widths actually fall. That is the data needed to
// tune a config for a remote whose encoder drifts from the stock constants.
//
// Usage:
//
//go run ./cmd/tools/timing-report [flags]
//
// Flags:
//
//-log     Path to .edgelog file to analyse (required)
//-config  Timing config JSON to classify against (default: built-in defaults)
//-plots   Directory to write histogram PNGs (default: no plots)
//-bins    Histogram bin count (default: 40)
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/keyfob.report/internal/capture"
	"github.com/banshee-data/keyfob.report/internal/config"
	"github.com/banshee-data/keyfob.report/internal/edgenet"
	"github.com/banshee-data/keyfob.report/internal/ev1527"
)

// pulseReport aggregates the classification counts and width populations of
// one capture.
type pulseReport struct {
	Pairs     int
	Preambles int
	DataBits  int
	Ones      int
	Zeros     int
	Invalid   int

	PreambleHighs []float64
	PreambleLows  []float64

	// ShortHalves and LongHalves split each data bit into its nominal T
	// and 3T halves regardless of bit value, which is the split the data
	// pulse window and bit threshold are tuned against.
	ShortHalves []float64
	LongHalves  []float64
}

// pairRecords reassembles HIGH+LOW pulse pairs from an edge record stream: a
// falling edge carries the preceding HIGH width, the next rising edge the LOW
// width. Rising records with no HIGH pending are idle gaps and drop out;
// an overflowed counter breaks pairing.
func pairRecords(records []capture.Record) []ev1527.PulsePair {
	var pairs []ev1527.PulsePair
	var high ev1527.Tick
	pending := false
	for _, rec := range records {
		if rec.Overflow {
			pending = false
			continue
		}
		switch rec.Polarity {
		case ev1527.Falling:
			high = rec.Ticks
			pending = true
		case ev1527.Rising:
			if pending {
				pairs = append(pairs, ev1527.PulsePair{High: high, Low: rec.Ticks})
				pending = false
			}
		}
	}
	return pairs
}

// buildReport classifies every pair under timing and collects the width
// populations.
func buildReport(pairs []ev1527.PulsePair, timing ev1527.Timing) pulseReport {
	rep := pulseReport{Pairs: len(pairs)}
	for _, p := range pairs {
		cls, bit := timing.Classify(p)
		switch cls {
		case ev1527.Preamble:
			rep.Preambles++
			rep.PreambleHighs = append(rep.PreambleHighs, float64(p.High))
			rep.PreambleLows = append(rep.PreambleLows, float64(p.Low))
		case ev1527.DataBit:
			rep.DataBits++
			short, long := p.Low, p.High
			if bit != 0 {
				rep.Ones++
			} else {
				rep.Zeros++
				short, long = p.High, p.Low
			}
			rep.ShortHalves = append(rep.ShortHalves, float64(short))
			rep.LongHalves = append(rep.LongHalves, float64(long))
		default:
			rep.Invalid++
		}
	}
	return rep
}

type widthSummary struct {
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	P5     float64
	Median float64
	P95    float64
	Max    float64
}

func summarize(ticks []float64) widthSummary {
	if len(ticks) == 0 {
		return widthSummary{}
	}
	sorted := append([]float64(nil), ticks...)
	sort.Float64s(sorted)
	return widthSummary{
		N:      len(sorted),
		Mean:   stat.Mean(sorted, nil),
		StdDev: stat.StdDev(sorted, nil),
		Min:    sorted[0],
		P5:     stat.Quantile(0.05, stat.Empirical, sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
}

func writeSummary(w io.Writer, name string, s widthSummary) {
	if s.N == 0 {
		fmt.Fprintf(w, "%-20s none\n", name+":")
		return
	}
	fmt.Fprintf(w, "%-20s n=%-6d mean=%.1f stddev=%.1f min=%.0f p5=%.0f p50=%.0f p95=%.0f max=%.0f\n",
		name+":", s.N, s.Mean, s.StdDev, s.Min, s.P5, s.Median, s.P95, s.Max)
}

func writeReport(w io.Writer, rep pulseReport, timing ev1527.Timing) {
	fmt.Fprintf(w, "Pulse pairs: %d\n", rep.Pairs)
	fmt.Fprintf(w, "  preambles: %d\n", rep.Preambles)
	fmt.Fprintf(w, "  data bits: %d (%d ones, %d zeros)\n", rep.DataBits, rep.Ones, rep.Zeros)
	fmt.Fprintf(w, "  invalid:   %d\n", rep.Invalid)
	fmt.Fprintf(w, "\nClassified against: preamble high [%d,%d] ratio [%d,%d], data window [%d,%d], bit threshold %d/%d\n\n",
		timing.PreambleHighMin, timing.PreambleHighMax,
		timing.PreambleRatioMin, timing.PreambleRatioMax,
		timing.DataPulseMin, timing.DataPulseMax,
		timing.BitThresholdNum, timing.BitThresholdDen)
	writeSummary(w, "data short halves", summarize(rep.ShortHalves))
	writeSummary(w, "data long halves", summarize(rep.LongHalves))
	writeSummary(w, "preamble highs", summarize(rep.PreambleHighs))
	writeSummary(w, "preamble lows", summarize(rep.PreambleLows))
}

// writeHistograms renders one PNG per non-empty population and returns how
// many were written.
func writeHistograms(dir string, rep pulseReport, bins int) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	populations := []struct {
		file  string
		title string
		data  []float64
	}{
		{"data_short_halves.png", "Data pulse short halves", rep.ShortHalves},
		{"data_long_halves.png", "Data pulse long halves", rep.LongHalves},
		{"preamble_highs.png", "Preamble HIGH widths", rep.PreambleHighs},
		{"preamble_lows.png", "Preamble LOW widths", rep.PreambleLows},
	}

	written := 0
	for _, pop := range populations {
		if len(pop.data) == 0 {
			continue
		}
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s (n=%d)", pop.title, len(pop.data))
		p.X.Label.Text = "Ticks"
		p.Y.Label.Text = "Count"

		h, err := plotter.NewHist(plotter.Values(pop.data), bins)
		if err != nil {
			return written, fmt.Errorf("%s: %w", pop.file, err)
		}
		p.Add(h)

		out := filepath.Join(dir, pop.file)
		if err := p.Save(10*vg.Inch, 5*vg.Inch, out); err != nil {
			return written, fmt.Errorf("save %s: %w", pop.file, err)
		}
		written++
	}
	return written, nil
}

// Main
func main() {
	logPath := flag.String("log", "", "Path to .edgelog file (required)")
	configPath := flag.String("config", "", "Timing config JSON to classify against (default: built-in defaults)")
	plotsDir := flag.String("plots", "", "Directory for histogram PNGs (default: no plots)")
	bins := flag.Int("bins", 40, "Histogram bin count")
	flag.Parse()

	if *logPath == "" {
		log.Fatal("Error: -log flag is required")
	}

	timingCfg := config.DefaultTimingConfig()
	var err error
	if *configPath != "" {
		timingCfg, err = config.LoadTimingConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load timing config: %v", err)
		}
	}
	timing := timingCfg.Timing()
	if err := timing.Validate(); err != nil {
		log.Fatalf("Invalid timing config: %v", err)
	}

	records, err := edgenet.ReadEdgeLogFile(*logPath)
	if err != nil {
		log.Fatalf("Failed to load edge log: %v", err)
	}

	pairs := pairRecords(records)
	if len(pairs) == 0 {
		log.Fatalf("No pulse pairs in %s", *logPath)
	}

	rep := buildReport(pairs, timing)
	writeReport(os.Stdout, rep, timing)

	if *plotsDir != "" {
		n, err := writeHistograms(*plotsDir, rep, *bins)
		if err != nil {
			log.Fatalf("Failed to write histograms: %v", err)
		}
		log.Printf("✓ Created: %d histogram plots in %s", n, *plotsDir)
	}
}
