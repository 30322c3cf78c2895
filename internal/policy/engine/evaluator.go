package engine

import "context"

// Actions evaluated by the admin policy.
const (
	ActionKPIRead      = "kpi.read"
	ActionAuditLogRead = "audit_log.read"
	ActionPromptUpdate = "prompt.update"
)

// Scopes of an admin query.
const (
	ScopeMe     = "me"
	ScopeTenant = "tenant"
)

// AdminInput is the policy input for one admin request.
type AdminInput struct {
	Action   string
	Scope    string
	TenantID string
	UserID   string
	Roles    []string
}

// Evaluator decides admin access using OPA or other engines.
type Evaluator interface {
	// AllowAdmin reports whether the caller may perform in.Action at in.Scope.
	AllowAdmin(ctx context.Context, in AdminInput) (bool, error)
	// HealthCheck verifies the engine can evaluate its policy.
	HealthCheck(ctx context.Context) error
}
