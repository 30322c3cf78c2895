// Package handler serves liveness and readiness over HTTP and the grpc.health.v1 service.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"praxis-pilot/backend/internal/platform/httpx"
	"praxis-pilot/backend/internal/platform/ratelimit"
)

// Handler serves /health and /ready.
type Handler struct {
	checker   *Checker
	perMinute int
}

// NewHandler returns a Handler rate limited to perMinute requests per caller and route.
func NewHandler(checker *Checker, perMinute int) *Handler {
	return &Handler{checker: checker, perMinute: perMinute}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router, rl *ratelimit.Limiter) {
	r.With(rl.Limit("health", h.perMinute)).Get("/health", h.health)
	r.With(rl.Limit("ready", h.perMinute)).Get("/ready", h.ready)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	res := h.checker.Check(r.Context())
	body := map[string]string{
		"status":   "ready",
		"database": okOrError(res.DatabaseOK),
		"policy":   okOrError(res.PolicyOK),
	}
	if !res.Ready() {
		body["status"] = "not_ready"
		httpx.WriteJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, body)
}

func okOrError(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
