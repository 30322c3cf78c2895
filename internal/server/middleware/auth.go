// Package middleware holds the HTTP middleware of the API server: identity resolution,
// client address, request telemetry and Prometheus metrics.
package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"praxis-pilot/backend/internal/platform/httpx"
	"praxis-pilot/backend/internal/security"
	"praxis-pilot/backend/internal/tenancy"
	userservice "praxis-pilot/backend/internal/user/service"
)

const bearerPrefix = "bearer "

// MsgUnauthorized is the detail of every authentication failure.
const MsgUnauthorized = "Missing or invalid authorization"

// TokenValidator verifies an access token and returns its claims.
type TokenValidator interface {
	Validate(token string) (*security.AccessClaims, error)
}

// Resolver maps a (tenant, subject) pair from verified claims to a tenant context.
type Resolver interface {
	Resolve(ctx context.Context, tenantID, subject string) (tenancy.Context, error)
}

// Auth returns middleware that validates the Bearer access token from the Authorization
// header, resolves the user it names and stores the tenant context on the request once
// its tenant and user ids are canonical UUIDs.
// Every failure is a 401 with MsgUnauthorized.
func Auth(tokens TokenValidator, users Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				httpx.WriteError(w, http.StatusUnauthorized, MsgUnauthorized)
				return
			}
			claims, err := tokens.Validate(token)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, MsgUnauthorized)
				return
			}
			tc, err := users.Resolve(r.Context(), claims.TenantID, claims.Subject)
			if err != nil {
				if !errors.Is(err, userservice.ErrUnknownUser) && !errors.Is(err, tenancy.ErrInvalidTenantID) {
					log.Printf("auth: resolve user: %v", err)
				}
				httpx.WriteError(w, http.StatusUnauthorized, MsgUnauthorized)
				return
			}
			if err := tc.Validate(); err != nil {
				log.Printf("auth: resolved context for subject %q: %v", claims.Subject, err)
				httpx.WriteError(w, http.StatusUnauthorized, MsgUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenancy.With(r.Context(), tc)))
		})
	}
}

// DevBypass returns middleware that injects the local development identity without
// looking at the request. Config refuses to enable it in production.
func DevBypass() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(tenancy.With(r.Context(), tenancy.Dev())))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
