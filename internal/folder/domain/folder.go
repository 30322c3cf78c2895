package domain

import "time"

// Folder groups chats within a tenant. Names are unique per tenant.
type Folder struct {
	ID        string
	TenantID  string
	Name      string
	CreatedAt time.Time
}
