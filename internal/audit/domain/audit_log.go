package domain

import "time"

// AuditLog is one security- or billing-relevant action. Metadata holds counts, ids and
// flags only, never clinical content.
type AuditLog struct {
	ID           string
	TenantID     string
	ActorID      string
	Action       string
	EntityType   string
	EntityID     string
	Metadata     map[string]any
	AssistMode   string
	ModelName    string
	ModelVersion string
	InputTokens  int
	OutputTokens int
	Timestamp    time.Time
}

// Usage is one LLM call's token accounting, written to usage_records and llm_audit_logs.
type Usage struct {
	TenantID      string
	UserID        string
	AssistMode    string
	ModelName     string
	ModelVersion  string
	InputTokens   int
	OutputTokens  int
	Status        string
	LatencyMS     int
	CorrelationID string
	Timestamp     time.Time
}

// Cursor is a keyset position in the audit log ordering (ts DESC, id DESC).
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// Filter selects audit log rows. Zero values are ignored.
type Filter struct {
	ActorID    string
	From       *time.Time
	To         *time.Time
	AssistMode string
	Action     string
	ModelName  string
	Query      string
	After      *Cursor
	Limit      int
}
