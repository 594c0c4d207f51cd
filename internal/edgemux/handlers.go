package edgemux

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/banshee-data/keyfob.report/internal/db"
)

// CurrentState holds the latest status values received from the adapter
// and is intentionally package-level so admin routes or tests can inspect it.
var CurrentState map[string]any

// HandleStatusResponse folds a JSON status line from the adapter into
// CurrentState and records the raw line for later inspection.
func HandleStatusResponse(d *db.DB, payload string) error {
	var statusValues map[string]any

	if err := json.Unmarshal([]byte(payload), &statusValues); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %v", err)
	}

	// update the current state with the new status values
	if CurrentState == nil {
		CurrentState = make(map[string]any)
	}
	for k, v := range statusValues {
		CurrentState[k] = v
	}

	log.Printf("Adapter Status Line: %+v", payload)

	return d.RecordAdapterLog(db.AdapterLogStatus, payload)
}

// HandleEvent dispatches a raw adapter line. Edge records are deliberately a
// no-op here: the capture bus consumes those on its own subscription, and
// persisting every edge would swamp the database.
func HandleEvent(d *db.DB, payload string) error {
	switch ClassifyPayload(payload) {
	case EventTypeEdge:
		return nil
	case EventTypeStatus:
		if err := HandleStatusResponse(d, payload); err != nil {
			return fmt.Errorf("failed to handle status response: %v", err)
		}
	default:
		log.Printf("unknown event type: %s", payload)
		if err := d.RecordAdapterLog(db.AdapterLogUnknown, payload); err != nil {
			return fmt.Errorf("failed to record unknown event: %v", err)
		}
	}
	return nil
}
