// Package tenancy carries the resolved tenant, user, and roles of a request.
// Every persistence scope binds the carried tenant id before running a statement.
package tenancy

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// RoleAdmin grants tenant-wide admin views (KPIs, audit logs) and prompt editing.
const RoleAdmin = "admin"

var (
	// ErrNoTenant is returned when a request has no resolved tenant context.
	ErrNoTenant = errors.New("tenant context required")
	// ErrInvalidTenantID is returned when a tenant id is not a canonical UUID.
	ErrInvalidTenantID = errors.New("invalid tenant id")
)

type contextKey struct{ name string }

var tenantKey = contextKey{"tenant"}

// Context is the immutable identity of one request: the tenant it is isolated to,
// the internal user id (users.id), the external subject, and the user's roles.
type Context struct {
	TenantID string
	UserID   string
	Subject  string
	Roles    []string
}

// HasRole reports whether the context carries role (case-insensitive).
func (c Context) HasRole(role string) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the context carries RoleAdmin.
func (c Context) IsAdmin() bool { return c.HasRole(RoleAdmin) }

// Validate checks that TenantID and UserID are canonical UUIDs.
func (c Context) Validate() error {
	if _, err := ParseTenantID(c.TenantID); err != nil {
		return err
	}
	if _, err := uuid.Parse(c.UserID); err != nil || c.UserID == "" {
		return ErrNoTenant
	}
	return nil
}

// ParseTenantID validates s as a UUID and returns its canonical string form.
// Only the canonical form is ever bound into a storage session.
func ParseTenantID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidTenantID
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", ErrInvalidTenantID
	}
	return id.String(), nil
}

// With returns a copy of ctx carrying tc. Roles are copied so later mutation of the
// caller's slice cannot change the carried identity.
func With(ctx context.Context, tc Context) context.Context {
	roles := make([]string, len(tc.Roles))
	copy(roles, tc.Roles)
	tc.Roles = roles
	return context.WithValue(ctx, tenantKey, tc)
}

// From returns the carried Context and true if set; otherwise a zero Context and false.
func From(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(tenantKey).(Context)
	return tc, ok
}

// Require returns the carried Context or ErrNoTenant when it is absent or incomplete.
func Require(ctx context.Context) (Context, error) {
	tc, ok := From(ctx)
	if !ok || tc.TenantID == "" || tc.UserID == "" {
		return Context{}, ErrNoTenant
	}
	return tc, nil
}

// Local development identity injected when auth bypass is enabled and written by cmd/seed.
const (
	DevTenantID = "00000000-0000-0000-0000-000000000001"
	DevUserID   = "00000000-0000-0000-0000-000000000002"
	DevSubject  = "dev-user-1"
)

// Dev returns the local development identity with the admin role.
func Dev() Context {
	return Context{TenantID: DevTenantID, UserID: DevUserID, Subject: DevSubject, Roles: []string{RoleAdmin}}
}
