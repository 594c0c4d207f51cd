package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/keyfob.report/internal/db"
	"github.com/banshee-data/keyfob.report/internal/edgemux"
	"github.com/banshee-data/keyfob.report/internal/ev1527"
	"github.com/banshee-data/keyfob.report/internal/monitoring"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	m         edgemux.EdgeMuxInterface
	db        *db.DB
	decoder   *ev1527.Decoder
	sessionID string

	// adapterMgr is set when the daemon runs with a hot-reloadable port;
	// /api/adapter/reload returns 503 without it.
	adapterMgr *AdapterPortManager

	// frameAt records when the currently latched frame was decoded. The
	// decoder latch itself carries no timestamp, so the daemon's frame
	// handler reports it here via NoteFrame.
	frameAt atomicTime
}

func NewServer(m edgemux.EdgeMuxInterface, database *db.DB, decoder *ev1527.Decoder, sessionID string) *Server {
	return &Server{
		m:         m,
		db:        database,
		decoder:   decoder,
		sessionID: sessionID,
	}
}

// SetAdapterManager enables the reload endpoint once the daemon has wrapped
// the adapter in a hot-reloadable manager.
func (s *Server) SetAdapterManager(mgr *AdapterPortManager) {
	s.adapterMgr = mgr
}

// NoteFrame records the decode time of the latched frame. Called by the
// daemon's frame handler alongside the database write; /api/frame reports the
// value as decoded_at.
func (s *Server) NoteFrame(at time.Time) {
	s.frameAt.Store(at)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// MetricsMiddleware records request counts and latencies into the Prometheus
// instruments. A nil metrics handle makes it a pass-through so test servers
// need no registry.
func MetricsMiddleware(metrics *monitoring.Metrics, next http.Handler) http.Handler {
	if metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		metrics.RecordHTTPRequest(r.Method, r.URL.Path, lrw.statusCode, time.Since(start))
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/frame", s.showFrame)
	mux.HandleFunc("/api/frame/ack", s.ackFrame)
	mux.HandleFunc("/api/arm", s.armDecoder)
	mux.HandleFunc("/api/disarm", s.disarmDecoder)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/frames", s.listFrames)
	mux.HandleFunc("/api/presses", s.listPresses)
	mux.HandleFunc("/api/press_stats", s.showPressStats)
	mux.HandleFunc("/api/commands", s.listCommands)
	mux.HandleFunc("/api/receiver_models", s.handleReceiverModels)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/command", s.sendCommandHandler)
	mux.HandleFunc("/api/charts/activity", s.showActivityChart)
	mux.HandleFunc("/api/adapter/configs", s.handleAdapterConfigsOrCreate)
	mux.HandleFunc("/api/adapter/configs/", s.handleAdapterConfigByID)
	mux.HandleFunc("/api/adapter/log", s.showAdapterLog)
	mux.HandleFunc("/api/adapter/test", s.handleAdapterTest)
	mux.HandleFunc("/api/adapter/devices", s.handleAdapterDevices)
	mux.HandleFunc("/api/adapter/reload", s.handleAdapterReload)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := r.FormValue("command")
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}

	if err := s.m.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	if _, err := s.db.RecordCommand(command, db.CommandSourceAPI); err != nil {
		// The command already reached the adapter; a failed audit write is
		// not worth surfacing as a request failure.
		log.Printf("Failed to record command %q: %v", command, err)
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	t := s.decoder.Timing()
	config := map[string]interface{}{
		"session_id":       s.sessionID,
		"tick_rate_hz":     t.TickRate(),
		"tick_interval_ns": t.TickInterval.Nanoseconds(),
		"timing": map[string]interface{}{
			"preamble_high_min_ticks": t.PreambleHighMin,
			"preamble_high_max_ticks": t.PreambleHighMax,
			"preamble_ratio_min":      t.PreambleRatioMin,
			"preamble_ratio_max":      t.PreambleRatioMax,
			"data_pulse_min_ticks":    t.DataPulseMin,
			"data_pulse_max_ticks":    t.DataPulseMax,
			"bit_threshold_num":       t.BitThresholdNum,
			"bit_threshold_den":       t.BitThresholdDen,
		},
	}

	if err := json.NewEncoder(w).Encode(config); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}
