package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const adminAllowQuery = "data.praxis.admin.allow"

// DefaultAdminPolicy grants own-scope reads to every user and tenant-wide reads and
// prompt edits to admins.
const DefaultAdminPolicy = `package praxis.admin

default allow := false

is_admin if {
	some role in input.roles
	lower(role) == "admin"
}

allow if {
	input.action in {"kpi.read", "audit_log.read"}
	input.scope == "me"
}

allow if {
	input.action in {"kpi.read", "audit_log.read"}
	input.scope == "tenant"
	is_admin
}

allow if {
	input.action == "prompt.update"
	is_admin
}
`

// OPAEvaluator evaluates the admin policy using OPA Rego. The policy is compiled once.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultAdminPolicy when empty) and prepares the allow query.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultAdminPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"admin.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile admin policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(adminAllowQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare admin policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// AllowAdmin implements Evaluator. A policy that yields no boolean denies.
func (e *OPAEvaluator) AllowAdmin(ctx context.Context, in AdminInput) (bool, error) {
	roles := make([]interface{}, 0, len(in.Roles))
	for _, r := range in.Roles {
		roles = append(roles, r)
	}
	input := map[string]interface{}{
		"action":    in.Action,
		"scope":     in.Scope,
		"tenant_id": in.TenantID,
		"user_id":   in.UserID,
		"roles":     roles,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval admin policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, _ := rs[0].Expressions[0].Value.(bool)
	return allowed, nil
}

// HealthCheck evaluates the prepared policy against a minimal input. Does not touch the database.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"action": ActionKPIRead,
		"scope":  ScopeMe,
		"roles":  []interface{}{},
	}))
	if err != nil {
		return fmt.Errorf("eval admin policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return errors.New("policy query returned no result")
	}
	return nil
}
