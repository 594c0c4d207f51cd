package api

import (
	"encoding/json"
	"net/http"
)

// ReceiverModel defines capabilities and adapter presets for a 433MHz
// receiver module wired to the capture adapter.
type ReceiverModel struct {
	Slug              string   `json:"slug"`
	DisplayName       string   `json:"display_name"`
	Superheterodyne   bool     `json:"superheterodyne"`
	OnboardDecoder    bool     `json:"onboard_decoder"`
	DefaultBaudRate   int      `json:"default_baud_rate"`
	DefaultTickRateHz uint32   `json:"default_tick_rate_hz"`
	InitCommands      []string `json:"init_commands"`
	Description       string   `json:"description"`
}

// SupportedReceiverModels is the application-level registry of receiver models
var SupportedReceiverModels = map[string]ReceiverModel{
	"syn480r": {
		Slug:              "syn480r",
		DisplayName:       "Synoxo SYN480R",
		Superheterodyne:   true,
		OnboardDecoder:    false,
		DefaultBaudRate:   115200,
		DefaultTickRateHz: 2000000,
		InitCommands:      []string{"V?", "T=2000000", "Z", "S1"},
		Description:       "300-450MHz ASK receiver, raw data out; the stock bench module",
	},
	"rx480e": {
		Slug:              "rx480e",
		DisplayName:       "Qiachip RX480-E",
		Superheterodyne:   true,
		OnboardDecoder:    true,
		DefaultBaudRate:   115200,
		DefaultTickRateHz: 2000000,
		InitCommands:      []string{"V?", "T=2000000", "Z", "S1"},
		Description:       "433.92MHz receiver with learning decoder; tap DO for raw edges",
	},
	"srx882": {
		Slug:              "srx882",
		DisplayName:       "NiceRF SRX882",
		Superheterodyne:   true,
		OnboardDecoder:    false,
		DefaultBaudRate:   115200,
		DefaultTickRateHz: 1000000,
		InitCommands:      []string{"V?", "T=1000000", "Z", "S1"},
		Description:       "433MHz ASK receiver with clean squelched output; 1MHz counter is ample",
	},
}

// GetReceiverModel looks up a receiver model by slug
func GetReceiverModel(slug string) (ReceiverModel, bool) {
	model, ok := SupportedReceiverModels[slug]
	return model, ok
}

// GetAllReceiverModels returns a slice of all supported receiver models
func GetAllReceiverModels() []ReceiverModel {
	models := make([]ReceiverModel, 0, len(SupportedReceiverModels))
	for _, model := range SupportedReceiverModels {
		models = append(models, model)
	}
	return models
}

// handleReceiverModels handles GET /api/receiver_models - List all receiver models
func (s *Server) handleReceiverModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	models := GetAllReceiverModels()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models)
}
