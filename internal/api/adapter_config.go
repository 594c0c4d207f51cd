package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/keyfob.report/internal/db"
	"github.com/banshee-data/keyfob.report/internal/security"
	"github.com/banshee-data/keyfob.report/internal/units"
)

// AdapterConfigRequest represents the request body for creating/updating adapter configs
type AdapterConfigRequest struct {
	Name          string `json:"name"`
	PortPath      string `json:"port_path"`
	BaudRate      int    `json:"baud_rate"`
	DataBits      int    `json:"data_bits"`
	StopBits      int    `json:"stop_bits"`
	Parity        string `json:"parity"`
	TickRateHz    int    `json:"tick_rate_hz"`
	Enabled       bool   `json:"enabled"`
	Description   string `json:"description"`
	ReceiverModel string `json:"receiver_model"`
}

// handleAdapterConfigsOrCreate handles GET and POST to /api/adapter/configs
func (s *Server) handleAdapterConfigsOrCreate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleAdapterConfigs(w, r)
	case http.MethodPost:
		s.handleCreateAdapterConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAdapterConfigs handles GET /api/adapter/configs - List all adapter configurations
func (s *Server) handleAdapterConfigs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	configs, err := s.db.GetAdapterConfigs()
	if err != nil {
		log.Printf("Error fetching adapter configs: %v", err)
		http.Error(w, "Failed to fetch adapter configurations", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(configs)
}

// handleAdapterConfigByID handles GET/PUT/DELETE /api/adapter/configs/:id
func (s *Server) handleAdapterConfigByID(w http.ResponseWriter, r *http.Request) {
	// Extract ID from URL path
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/adapter/configs/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		http.Error(w, "Missing config ID", http.StatusBadRequest)
		return
	}

	id, err := strconv.Atoi(pathParts[0])
	if err != nil {
		http.Error(w, "Invalid config ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetAdapterConfig(w, r, id)
	case http.MethodPut:
		s.handleUpdateAdapterConfig(w, r, id)
	case http.MethodDelete:
		s.handleDeleteAdapterConfig(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetAdapterConfig handles GET /api/adapter/configs/:id
func (s *Server) handleGetAdapterConfig(w http.ResponseWriter, r *http.Request, id int) {
	config, err := s.db.GetAdapterConfig(id)
	if err != nil {
		log.Printf("Error fetching adapter config %d: %v", id, err)
		http.Error(w, "Failed to fetch adapter configuration", http.StatusInternalServerError)
		return
	}

	if config == nil {
		http.Error(w, "Configuration not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(config)
}

// validateAdapterConfigRequest applies defaults and rejects malformed fields.
// The receiver model and tick rate checks run here so the database CHECK
// constraint is never the first line of defence for API clients.
func validateAdapterConfigRequest(req *AdapterConfigRequest) (string, bool) {
	if req.Name == "" {
		return "Name is required", false
	}
	if req.PortPath == "" {
		return "Port path is required", false
	}
	if !isValidPortPath(req.PortPath) {
		return "Invalid port path. Must start with /dev/tty or /dev/serial", false
	}
	if _, ok := GetReceiverModel(req.ReceiverModel); !ok {
		return fmt.Sprintf("Unsupported receiver model: %s", req.ReceiverModel), false
	}

	if req.BaudRate == 0 {
		req.BaudRate = 115200
	}
	if req.DataBits == 0 {
		req.DataBits = 8
	}
	if req.StopBits == 0 {
		req.StopBits = 1
	}
	if req.Parity == "" {
		req.Parity = "N"
	}
	if req.TickRateHz == 0 {
		req.TickRateHz = int(units.Rate2MHz)
	}
	if !units.IsValidTickRate(uint32(req.TickRateHz)) {
		return fmt.Sprintf("Unsupported tick rate %d Hz: firmware accepts %s",
			req.TickRateHz, units.ValidTickRatesString()), false
	}

	return "", true
}

// handleCreateAdapterConfig handles POST /api/adapter/configs
func (s *Server) handleCreateAdapterConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AdapterConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if msg, ok := validateAdapterConfigRequest(&req); !ok {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	config := &db.AdapterConfig{
		Name:          req.Name,
		PortPath:      req.PortPath,
		BaudRate:      req.BaudRate,
		DataBits:      req.DataBits,
		StopBits:      req.StopBits,
		Parity:        req.Parity,
		TickRateHz:    req.TickRateHz,
		Enabled:       req.Enabled,
		Description:   req.Description,
		ReceiverModel: req.ReceiverModel,
	}

	id, err := s.db.CreateAdapterConfig(config)
	if err != nil {
		log.Printf("Error creating adapter config: %v", err)
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			http.Error(w, "Configuration with this name already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create adapter configuration", http.StatusInternalServerError)
		return
	}

	// Fetch the created config to return it
	created, err := s.db.GetAdapterConfig(int(id))
	if err != nil {
		log.Printf("Error fetching created config: %v", err)
		http.Error(w, "Configuration created but failed to fetch", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// handleUpdateAdapterConfig handles PUT /api/adapter/configs/:id
func (s *Server) handleUpdateAdapterConfig(w http.ResponseWriter, r *http.Request, id int) {
	var req AdapterConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if msg, ok := validateAdapterConfigRequest(&req); !ok {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	config := &db.AdapterConfig{
		ID:            id,
		Name:          req.Name,
		PortPath:      req.PortPath,
		BaudRate:      req.BaudRate,
		DataBits:      req.DataBits,
		StopBits:      req.StopBits,
		Parity:        req.Parity,
		TickRateHz:    req.TickRateHz,
		Enabled:       req.Enabled,
		Description:   req.Description,
		ReceiverModel: req.ReceiverModel,
	}

	err := s.db.UpdateAdapterConfig(config)
	if err != nil {
		log.Printf("Error updating adapter config %d: %v", id, err)
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Configuration not found", http.StatusNotFound)
			return
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			http.Error(w, "Configuration with this name already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to update adapter configuration", http.StatusInternalServerError)
		return
	}

	// Fetch the updated config to return it
	updated, err := s.db.GetAdapterConfig(id)
	if err != nil {
		log.Printf("Error fetching updated config: %v", err)
		http.Error(w, "Configuration updated but failed to fetch", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// handleDeleteAdapterConfig handles DELETE /api/adapter/configs/:id
func (s *Server) handleDeleteAdapterConfig(w http.ResponseWriter, r *http.Request, id int) {
	err := s.db.DeleteAdapterConfig(id)
	if err != nil {
		log.Printf("Error deleting adapter config %d: %v", id, err)
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Configuration not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to delete adapter configuration", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// isValidPortPath reports whether a port path names a device under /dev/tty
// or /dev/serial without escaping /dev. The prefix check alone would accept
// traversals like /dev/tty/../../etc/passwd.
func isValidPortPath(path string) bool {
	if !strings.HasPrefix(path, "/dev/tty") && !strings.HasPrefix(path, "/dev/serial") {
		return false
	}
	return security.ValidatePathWithinDirectory(path, "/dev") == nil
}
