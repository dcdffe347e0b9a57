package outbox

import (
	"encoding/json"
	"time"
)

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// ReconcileRequested is the payload for reconcile_requested events. Reason is
// free-form provenance ("webhook", "sweep") for debugging, not behavior.
type ReconcileRequested struct {
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}
