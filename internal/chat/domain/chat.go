package domain

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a chat. The only transition is Active to Finalized.
type Status string

const (
	StatusActive    Status = "active"
	StatusFinalized Status = "finalized"
)

// DefaultTitle is used when a chat is created without a title.
const DefaultTitle = "New chat"

// ErrAlreadyFinalized is returned when finalizing a finalized chat.
var ErrAlreadyFinalized = errors.New("chat already finalized")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Metadata is the sanitized per-chat settings mapping.
type Metadata struct {
	SafeMode bool `json:"safe_mode"`
}

// Chat is a conversation owned by one user within a tenant.
type Chat struct {
	ID          string
	TenantID    string
	OwnerUserID string
	Title       string
	FolderID    *string
	IsFavorite  bool
	Status      Status
	Metadata    Metadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Mutable reports whether the chat accepts writes.
func (c *Chat) Mutable() bool { return c.Status != StatusFinalized }

// Finalize moves the chat to StatusFinalized. It fails when the chat is already finalized.
func (c *Chat) Finalize() error {
	if c.Status == StatusFinalized {
		return ErrAlreadyFinalized
	}
	c.Status = StatusFinalized
	return nil
}

// Message is one append-only chat turn.
type Message struct {
	ID        string
	TenantID  string
	ChatID    string
	Role      string
	Content   string
	CreatedAt time.Time
}
