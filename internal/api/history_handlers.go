package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/keyfob.report/internal/db"
)

// parseLimit reads the optional ?limit= parameter. Zero means "use the
// store's default"; anything unparsable or below 1 is a client error.
func parseLimit(r *http.Request) (int, error) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(l)
	if err != nil || parsed < 1 {
		return 0, fmt.Errorf("invalid 'limit' parameter")
	}
	return parsed, nil
}

// parseDaysWindow reads the optional ?days= parameter (default 1) and
// returns the [start, end] unix-seconds window ending now.
func parseDaysWindow(r *http.Request) (start, end float64, err error) {
	days := 1
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, perr := strconv.Atoi(d)
		if perr != nil || parsed < 1 {
			return 0, 0, fmt.Errorf("invalid 'days' parameter")
		}
		days = parsed
	}
	end = float64(time.Now().Unix())
	start = end - float64(days)*86400
	return start, end, nil
}

// listFrames handles GET /api/frames?limit= with the most recent decoded
// frames, newest first.
func (s *Server) listFrames(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
		return
	}

	frames, err := s.db.Frames(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve frames: %v", err))
		return
	}
	if frames == nil {
		frames = []db.Frame{}
	}

	if err := json.NewEncoder(w).Encode(frames); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write frames")
		return
	}
}

// listPresses handles GET /api/presses?days= with presses aggregated by the
// press worker over the window.
func (s *Server) listPresses(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	start, end, err := parseDaysWindow(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'days' parameter")
		return
	}

	presses, err := s.db.Presses(start, end)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve presses: %v", err))
		return
	}
	if presses == nil {
		presses = []db.Press{}
	}

	if err := json.NewEncoder(w).Encode(presses); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write presses")
		return
	}
}

// showPressStats handles GET /api/press_stats?days= with per-button rollups.
func (s *Server) showPressStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	start, end, err := parseDaysWindow(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'days' parameter")
		return
	}

	stats, err := s.db.PressStats(start, end)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve press stats: %v", err))
		return
	}
	if stats == nil {
		stats = []db.PressStat{}
	}

	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write press stats")
		return
	}
}

// listCommands handles GET /api/commands?limit= with the adapter command
// audit trail, newest first.
func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
		return
	}

	commands, err := s.db.Commands(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve commands: %v", err))
		return
	}
	if commands == nil {
		commands = []db.Command{}
	}

	if err := json.NewEncoder(w).Encode(commands); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write commands")
		return
	}
}

// showAdapterLog handles GET /api/adapter/log?limit= with the stored
// non-edge adapter lines, newest first.
func (s *Server) showAdapterLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
		return
	}

	entries, err := s.db.AdapterLog(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve adapter log: %v", err))
		return
	}
	if entries == nil {
		entries = []db.AdapterLogEntry{}
	}

	if err := json.NewEncoder(w).Encode(entries); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write adapter log")
		return
	}
}
