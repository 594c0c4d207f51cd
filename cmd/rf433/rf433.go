package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/keyfob.report/internal/api"
	"github.com/banshee-data/keyfob.report/internal/capture"
	"github.com/banshee-data/keyfob.report/internal/config"
	"github.com/banshee-data/keyfob.report/internal/db"
	"github.com/banshee-data/keyfob.report/internal/edgemux"
	"github.com/banshee-data/keyfob.report/internal/edgenet"
	"github.com/banshee-data/keyfob.report/internal/ev1527"
	"github.com/banshee-data/keyfob.report/internal/monitoring"
	"github.com/banshee-data/keyfob.report/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	port       = flag.String("port", "", "Serial port of the capture adapter (default: open the enabled adapter configuration from the database)")
	dbFile     = flag.String("db", "keyfob_data.db", "Path to the SQLite database file")
	configPath = flag.String("config", "", "Path to a timing config JSON file (default: built-in timing)")
	devMode    = flag.Bool("dev", false, "Run with a synthetic capture adapter instead of hardware")
	devFrames  = flag.String("dev-frames", "", "Comma-separated hex frame codes the synthetic adapter transmits (requires -dev)")
	disableRF  = flag.Bool("disable-rf", false, "Run without a capture adapter (API and history only)")
	receiverID = flag.String("receiver-id", "default", "Receiver identifier recorded with each decoded frame")
	autoRearm  = flag.Bool("auto-rearm", true, "Re-arm the decoder after each latched frame is acknowledged or held too long")
	latchHold  = flag.Duration("latch-hold", 2*time.Second, "How long an unacknowledged frame stays latched before auto-rearm discards it")
	udpListen  = flag.String("udp-listen", "", "UDP listen address for networked capture adapters (e.g. :17713; empty disables)")
	rcvBuf     = flag.Int("rcvbuf", 1<<20, "UDP receive buffer size in bytes")
	backfill   = flag.Bool("backfill-presses", false, "Rebuild press aggregates over the full frame history at startup")
)

// Constants
const PRESS_MODEL_VERSION = "gap-v1"

// armPollInterval is how often the auto-rearm loop checks the latch while a
// frame is waiting to be acknowledged.
const armPollInterval = 100 * time.Millisecond

// splitMigrateArgs peels an optional --db=<path> override off the front of the
// migrate subcommand arguments.
func splitMigrateArgs(args []string, defaultPath string) (string, []string) {
	if len(args) > 0 && strings.HasPrefix(args[0], "--db=") {
		return strings.TrimPrefix(args[0], "--db="), args[1:]
	}
	return defaultPath, args
}

// parseFrameList parses a comma-separated list of hex frame codes such as
// "0x8BEEF1,A5F314" into 24-bit frame values for the synthetic adapter.
func parseFrameList(s string) ([]uint32, error) {
	var frames []uint32
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(field, "0x"), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid frame code %q: %v", field, err)
		}
		if v > 0xFFFFFF {
			return nil, fmt.Errorf("frame code %q exceeds 24 bits", field)
		}
		frames = append(frames, uint32(v))
	}
	return frames, nil
}

// loadTimingConfig loads the timing file named on the command line, or the
// built-in defaults when none is given.
func loadTimingConfig(path string) (*config.TimingConfig, error) {
	if path == "" {
		return config.DefaultTimingConfig(), nil
	}
	return config.LoadTimingConfig(path)
}

// meteredSink counts UDP edge records into the Prometheus instruments on their
// way to the capture bus.
type meteredSink struct {
	bus     *capture.Bus
	metrics *monitoring.Metrics
}

func (s *meteredSink) Offer(rec capture.Record) {
	s.metrics.RecordEdgeRecords("udp", 1)
	s.bus.Offer(rec)
}

// armLoop keeps the decoder listening. The decoder self-disables when a frame
// latches; a consumer reads it at /api/frame and acknowledges it. The loop
// re-arms as soon as the latch is acknowledged, or discards it after the hold
// window so an unattended gateway keeps logging bursts. An operator disarm
// through the API never produces a latch signal, so it is left alone.
func armLoop(ctx context.Context, decoder *ev1527.Decoder, hold time.Duration, latched <-chan struct{}, metrics *monitoring.Metrics) {
	decoder.Enable()

	ticker := time.NewTicker(armPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-latched:
		}

		deadline := time.Now().Add(hold)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if decoder.Enabled() {
				// somebody re-armed through the API already
				break
			}
			if _, ready := decoder.ReadFrame(); !ready {
				// acknowledged; resume listening
				decoder.Enable()
				break
			}
			if hold > 0 && time.Now().Before(deadline) {
				continue
			}
			decoder.ClearReady()
			decoder.Enable()
			break
		}
		metrics.SetFrameReady(false)
	}
}

// handleAdapterLine dispatches one line from the capture adapter. Edge records
// feed the capture bus; everything else goes through the event handler for
// status tracking and audit logging.
func handleAdapterLine(database *db.DB, bus *capture.Bus, metrics *monitoring.Metrics, payload string) {
	kind := edgemux.ClassifyPayload(payload)
	metrics.RecordAdapterLine(kind)

	if kind == edgemux.EventTypeEdge {
		rec, err := edgemux.ParseEdgeLine(payload)
		if err != nil {
			log.Printf("bad edge record: %v", err)
			return
		}
		metrics.RecordEdgeRecords("serial", 1)
		bus.Offer(rec)
		return
	}

	if err := edgemux.HandleEvent(database, payload); err != nil {
		log.Printf("error handling adapter event: %v", err)
	}
}

// Main
func main() {
	// `rf433 migrate <action>` dispatches to the migration CLI before the
	// daemon flags are parsed.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		path, args := splitMigrateArgs(os.Args[2:], "keyfob_data.db")
		db.RunMigrateCommand(args, path)
		return
	}

	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *devMode && *disableRF {
		log.Fatal("-dev and -disable-rf are mutually exclusive")
	}

	timingCfg, err := loadTimingConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load timing config: %v", err)
	}
	timing := timingCfg.Timing()

	log.Printf("keyfob.report %s starting", version.String())

	database, err := db.NewDBWithMigrationCheck(*dbFile, true)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	// Create a wait group for the HTTP server, adapter monitor, and decode
	// routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Select the capture adapter. Real hardware is wrapped in a reload
	// manager so /api/adapter/reload can swap ports without a restart; the
	// mock and disabled variants are fixed for the life of the process.
	var adapterMux edgemux.EdgeMuxInterface
	var adapterMgr *api.AdapterPortManager
	switch {
	case *devMode:
		frames, err := parseFrameList(*devFrames)
		if err != nil {
			log.Fatalf("Failed to parse -dev-frames: %v", err)
		}
		adapterMux = edgemux.NewMockEdgeMux(frames...)
		if err := adapterMux.Initialize(); err != nil {
			log.Fatalf("failed to initialize mock adapter: %v", err)
		}
	case *disableRF:
		log.Printf("Capture adapter disabled (-disable-rf)")
		adapterMux = edgemux.NewDisabledEdgeMux()
	case *port != "":
		initial, err := api.RealEdgeMuxFactory(*port, edgemux.PortOptions{}, timing.TickRate())
		if err != nil {
			log.Fatalf("failed to open capture adapter at %s: %v", *port, err)
		}
		adapterMgr = api.NewAdapterPortManager(database, initial, api.AdapterConfigSnapshot{
			PortPath:   *port,
			TickRateHz: int(timing.TickRate()),
			Source:     "flag",
		}, api.RealEdgeMuxFactory)
		if err := adapterMgr.Initialize(); err != nil {
			log.Fatalf("failed to initialize capture adapter: %v", err)
		}
		log.Printf("initialized capture adapter at %s", *port)
		adapterMux = adapterMgr
	default:
		adapterMgr = api.NewAdapterPortManager(database, nil, api.AdapterConfigSnapshot{}, api.RealEdgeMuxFactory)
		// The port stays down until a valid configuration is applied, so a
		// missing adapter is reported but not fatal: the operator can fix
		// the configuration and reload over the API.
		if result, err := adapterMgr.ReloadConfig(ctx); err != nil {
			log.Printf("Warning: capture adapter not started: %v", err)
		} else {
			log.Printf("%s", result.Message)
		}
		adapterMux = adapterMgr
	}
	defer adapterMux.Close()

	// The capture bus adapts adapter edge records to the decoder's tick and
	// edge sources.
	bus := capture.NewBus()
	decoder, err := ev1527.NewDecoder(timing, bus, bus)
	if err != nil {
		log.Fatalf("Invalid decoder timing: %v", err)
	}

	sessionID := uuid.New().String()
	log.Printf("Capture session %s", sessionID)

	apiServer := api.NewServer(adapterMux, database, decoder, sessionID)
	if adapterMgr != nil {
		apiServer.SetAdapterManager(adapterMgr)
	}

	frameLatched := make(chan struct{}, 1)
	decoder.SetFrameHandler(func(f ev1527.Frame) {
		now := time.Now()
		metrics.RecordFrame()
		metrics.SetFrameReady(true)
		apiServer.NoteFrame(now)
		if err := database.RecordFrame(float64(now.UnixNano())/1e9, sessionID, *receiverID, f.Raw); err != nil {
			log.Printf("failed to record frame %s: %v", f, err)
		} else {
			log.Printf("Decoded frame %s", f)
		}
		select {
		case frameLatched <- struct{}{}:
		default:
		}
	})

	// Aggregate raw frame bursts into presses on the worker schedule from
	// the timing config.
	gapMS := int(timingCfg.GetPressGap() / time.Millisecond)
	worker := db.NewPressWorker(database, gapMS, PRESS_MODEL_VERSION)
	worker.Interval = timingCfg.GetWorkerInterval()
	worker.Window = timingCfg.GetWorkerWindow()
	worker.Start()
	defer worker.Stop()

	if *backfill {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("Backfilling presses over the full frame history")
			if err := worker.RunFullHistory(ctx); err != nil {
				log.Printf("press backfill failed: %v", err)
			}
		}()
	}

	// run the monitor routine to manage IO on the adapter port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := adapterMux.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor adapter port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to the adapter lines and feed them to the capture bus and
	// event handler
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := adapterMux.Subscribe()
		defer adapterMux.Unsubscribe(id)
		for {
			select {
			case payload := <-c:
				handleAdapterLine(database, bus, metrics, payload)
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	if *autoRearm {
		wg.Add(1)
		go func() {
			defer wg.Done()
			armLoop(ctx, decoder, *latchHold, frameLatched, metrics)
			log.Printf("arm loop terminated")
		}()
	} else {
		log.Printf("Auto-rearm disabled; arm the decoder with POST /api/arm")
	}

	// Optional UDP listener for networked capture adapters. Records land on
	// the same capture bus as the serial stream.
	if *udpListen != "" {
		listener := edgenet.NewUDPListener(edgenet.UDPListenerConfig{
			Address: *udpListen,
			RcvBuf:  *rcvBuf,
			Stats:   edgenet.NewPacketStats(),
			Sink:    &meteredSink{bus: bus, metrics: metrics},
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("UDP listener error: %v", err)
			}
			log.Print("UDP listener routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// mount the API handlers plus the admin debugging routes
		// (accessible only in dev mode or over Tailscale)
		mux := apiServer.ServeMux()
		database.AttachAdminRoutes(mux)
		adapterMux.AttachAdminRoutes(mux)
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(api.MetricsMiddleware(metrics, mux)),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
