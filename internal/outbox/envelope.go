package outbox

import (
	"encoding/json"
	"time"
)

const EventVersion = "1"

// Envelope is the wire format of every checkout event, whichever broker
// carries it.
type Envelope struct {
	EventID      string          `json:"eventId"`
	EventType    string          `json:"eventType"`
	EventVersion string          `json:"eventVersion"`
	OccurredAt   time.Time       `json:"occurredAt"`
	AggregateID  string          `json:"aggregateId"`
	Data         json.RawMessage `json:"data"`
}
