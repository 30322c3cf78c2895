package service

import (
	"context"
	"errors"

	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/tenancy"
	"praxis-pilot/backend/internal/user/domain"
	"praxis-pilot/backend/internal/user/repository"
)

// ErrUnknownUser is returned when no user exists for the token's (tenant, subject).
var ErrUnknownUser = errors.New("user not found")

// Resolver maps verified token claims to the request's tenant context.
type Resolver struct {
	scope db.Runner
	repo  repository.Repository
}

// NewResolver returns a Resolver.
func NewResolver(scope db.Runner, repo repository.Repository) *Resolver {
	return &Resolver{scope: scope, repo: repo}
}

// Resolve looks up the user for (tenantID, subject) in a scope bound to tenantID and
// returns the tenant context for the request. The tenant id must be a UUID.
func (r *Resolver) Resolve(ctx context.Context, tenantID, subject string) (tenancy.Context, error) {
	tenantID, err := tenancy.ParseTenantID(tenantID)
	if err != nil {
		return tenancy.Context{}, err
	}
	if subject == "" {
		return tenancy.Context{}, ErrUnknownUser
	}
	var u *domain.User
	err = r.scope.Run(ctx, tenancy.Context{TenantID: tenantID, Subject: subject}, func(ctx context.Context) error {
		var err error
		u, err = r.repo.GetBySubject(ctx, subject)
		return err
	})
	if err != nil {
		return tenancy.Context{}, err
	}
	if u == nil || u.TenantID != tenantID {
		return tenancy.Context{}, ErrUnknownUser
	}
	return tenancy.Context{TenantID: tenantID, UserID: u.ID, Subject: u.Subject, Roles: u.Roles()}, nil
}
