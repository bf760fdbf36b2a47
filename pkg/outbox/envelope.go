package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies the buyer whose checkout produced the event.
type ActorRef struct {
	UserID      *uuid.UUID `json:"userId,omitempty"`
	BrowserGUID string     `json:"browserGuid,omitempty"`
}

// EnvelopeVersion is stamped on every envelope written. Consumers reject
// envelopes newer than they understand.
const EnvelopeVersion = 1

// PayloadEnvelope wraps every outbox payload; Data holds the event-specific
// JSON.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
