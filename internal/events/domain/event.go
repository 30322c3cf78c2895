package domain

import (
	"encoding/json"
	"time"
)

// Event is an immutable fact recorded in the domain event log.
type Event struct {
	ID            string
	TenantID      string
	EventID       string
	Timestamp     time.Time
	Actor         string
	EntityType    string
	EntityID      string
	EventType     string
	Payload       json.RawMessage
	PayloadDigest []byte
	Source        string
	SchemaVersion string
	Confidence    *float64
	Model         *string
}
