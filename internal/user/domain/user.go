package domain

import (
	"errors"
	"time"
)

// Roles stored on users.role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a tenant member resolved from an external identity subject.
type User struct {
	ID        string
	TenantID  string
	Subject   string // b2c_sub from the identity provider
	Email     string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if u.Subject == "" {
		return errors.New("subject is required")
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// Roles returns the role set carried on a request for u.
func (u *User) Roles() []string {
	if u.Role == "" {
		return []string{RoleUser}
	}
	return []string{u.Role}
}
