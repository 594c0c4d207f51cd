package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/keyfob.report/internal/edgemux"
	"github.com/banshee-data/keyfob.report/internal/version"
)

// atomicTime is a mutex-guarded time.Time cell shared between the daemon's
// frame handler and the HTTP handlers.
type atomicTime struct {
	mu sync.Mutex
	t  time.Time
}

func (a *atomicTime) Store(t time.Time) {
	a.mu.Lock()
	a.t = t
	a.mu.Unlock()
}

func (a *atomicTime) Load() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.t
}

// FrameResponse is the JSON shape of the latched frame.
type FrameResponse struct {
	Raw       uint32  `json:"raw"`
	Address   uint32  `json:"address"`
	Key       uint8   `json:"key"`
	Ready     bool    `json:"ready"`
	DecodedAt float64 `json:"decoded_at,omitempty"`
}

// showFrame handles GET /api/frame. Reading is non-destructive: the frame
// stays latched until POST /api/frame/ack clears the ready flag.
func (s *Server) showFrame(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	frame, ready := s.decoder.ReadFrame()
	if !ready {
		s.writeJSONError(w, http.StatusNotFound, "No frame latched")
		return
	}

	resp := FrameResponse{
		Raw:     frame.Raw,
		Address: frame.Address(),
		Key:     frame.Key(),
		Ready:   true,
	}
	if at := s.frameAt.Load(); !at.IsZero() {
		resp.DecodedAt = float64(at.UnixNano()) / 1e9
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write frame")
		return
	}
}

// ackFrame handles POST /api/frame/ack. Clearing the ready flag keeps the
// frame value readable but marks it consumed; the decoder stays disarmed
// until the client POSTs /api/arm again.
func (s *Server) ackFrame(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.decoder.ClearReady()
	json.NewEncoder(w).Encode(map[string]bool{"acknowledged": true})
}

// armDecoder handles POST /api/arm. Enable discards any unread latched frame,
// so clients that care about it must GET /api/frame first.
func (s *Server) armDecoder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.decoder.Enable()
	s.frameAt.Store(time.Time{})
	json.NewEncoder(w).Encode(map[string]bool{"enabled": true})
}

// disarmDecoder handles POST /api/disarm.
func (s *Server) disarmDecoder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.decoder.Disable()
	json.NewEncoder(w).Encode(map[string]bool{"enabled": false})
}

// showStatus handles GET /api/status.
func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	_, ready := s.decoder.ReadFrame()
	status := map[string]interface{}{
		"enabled":     s.decoder.Enabled(),
		"frame_ready": ready,
		"session_id":  s.sessionID,
		"decoder":     s.decoder.Stats(),
		"adapter":     edgemux.CurrentState,
		"version":     version.Version,
		"git_sha":     version.GitSHA,
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
		return
	}
}
