package db

import (
	"context"
	"sync"

	"praxis-pilot/backend/internal/tenancy"
)

// DirectRunner is a Runner for service tests. It carries tc on the context and calls fn
// without a transaction, so AfterCommit hooks run immediately. Errors from fn are
// returned as is; Runs counts calls and Tenants records each bound tenant.
type DirectRunner struct {
	mu      sync.Mutex
	Runs    int
	Tenants []string
}

// Run implements Runner.
func (r *DirectRunner) Run(ctx context.Context, tc tenancy.Context, fn func(ctx context.Context) error) error {
	tenantID, err := tenancy.ParseTenantID(tc.TenantID)
	if err != nil {
		return err
	}
	tc.TenantID = tenantID
	r.mu.Lock()
	r.Runs++
	r.Tenants = append(r.Tenants, tenantID)
	r.mu.Unlock()
	return fn(tenancy.With(ctx, tc))
}
