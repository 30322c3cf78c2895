package handler

import (
	"context"
	"log"
	"time"
)

// Version is reported by the liveness endpoint.
const Version = "0.1.0"

const checkTimeout = 3 * time.Second

// Pinger checks database connectivity (e.g. db.Pinger).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks that the policy engine can evaluate (e.g. engine.Evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Readiness is the outcome of one readiness check.
type Readiness struct {
	DatabaseOK bool
	PolicyOK   bool
}

// Ready reports whether every dependency is usable.
func (r Readiness) Ready() bool { return r.DatabaseOK && r.PolicyOK }

// Checker runs the readiness checks shared by the HTTP and gRPC health endpoints.
// A nil dependency is treated as healthy.
type Checker struct {
	db     Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker. Either argument may be nil.
func NewChecker(db Pinger, policy PolicyChecker) *Checker {
	return &Checker{db: db, policy: policy}
}

// Check pings the database and runs the policy health check, each bounded by a short timeout.
// Failures are logged without their detail leaving the process.
func (c *Checker) Check(ctx context.Context) Readiness {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	res := Readiness{DatabaseOK: true, PolicyOK: true}
	if c.db != nil {
		if err := c.db.Ping(ctx); err != nil {
			log.Printf("health: database ping failed: %v", err)
			res.DatabaseOK = false
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			log.Printf("health: policy engine check failed: %v", err)
			res.PolicyOK = false
		}
	}
	return res
}
