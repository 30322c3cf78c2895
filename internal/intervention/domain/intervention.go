package domain

import "time"

// Intervention is a library entry. Global entries have an empty TenantID.
type Intervention struct {
	ID            string
	TenantID      string
	Category      string
	Title         string
	Description   string
	EvidenceLevel *string
	References    []string
	CreatedAt     time.Time
}
