package domain

import "time"

// Event types carried by the telemetry pipeline.
const (
	EventHTTPRequest = "http_request"
	EventDomain      = "domain_event"
)

// Event is one telemetry record. It never carries clinical content: only ids, route
// names, status codes and durations.
type Event struct {
	TenantID   string            `json:"tenant_id,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	EventType  string            `json:"event_type"`
	Source     string            `json:"source,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
