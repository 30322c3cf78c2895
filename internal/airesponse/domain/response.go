package domain

import (
	"time"

	"praxis-pilot/backend/internal/render"
)

// Response is one stored, sanitized model output for an entity. Versions are
// monotonic per (tenant, entity_id); the highest version is the latest.
type Response struct {
	ID          string
	TenantID    string
	EntityType  string
	EntityID    string
	RawMarkdown string
	Blocks      []render.Block
	Model       string
	Confidence  float64
	Version     int
	CreatedAt   time.Time
}

// NeedsReview reports whether confidence falls below threshold. It is advisory only.
func (r *Response) NeedsReview(threshold float64) bool {
	return r.Confidence < threshold
}
