// Package rbac guards handlers that need an authenticated tenant member or an admin
// decision from the policy engine. Failures are returned as httpx errors.
package rbac

import (
	"context"
	"log"
	"net/http"

	"praxis-pilot/backend/internal/platform/httpx"
	"praxis-pilot/backend/internal/policy/engine"
	"praxis-pilot/backend/internal/tenancy"
)

// RequireMember ensures the request carries a resolved tenant context.
// Returns a 401 *httpx.Error otherwise.
func RequireMember(ctx context.Context) (tenancy.Context, error) {
	tc, err := tenancy.Require(ctx)
	if err != nil {
		return tenancy.Context{}, httpx.NewError(http.StatusUnauthorized, "Missing or invalid authorization")
	}
	return tc, nil
}

// Authorize ensures the caller is a member and the policy allows action at scope.
// Returns a 403 *httpx.Error when denied and a 500 when the policy cannot be evaluated.
func Authorize(ctx context.Context, ev engine.Evaluator, action, scope string) (tenancy.Context, error) {
	tc, err := RequireMember(ctx)
	if err != nil {
		return tenancy.Context{}, err
	}
	allowed, err := ev.AllowAdmin(ctx, engine.AdminInput{
		Action:   action,
		Scope:    scope,
		TenantID: tc.TenantID,
		UserID:   tc.UserID,
		Roles:    tc.Roles,
	})
	if err != nil {
		log.Printf("rbac: policy evaluation failed: %v", err)
		return tenancy.Context{}, httpx.NewError(http.StatusInternalServerError, "Internal server error")
	}
	if !allowed {
		return tenancy.Context{}, httpx.NewError(http.StatusForbidden, "Admin role required")
	}
	return tc, nil
}
