package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"praxis-pilot/backend/internal/platform/httpx"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/platform/rbac"
	"praxis-pilot/backend/internal/policy/engine"
	"praxis-pilot/backend/internal/prompt/service"
)

// Handler serves the prompt registry under /prompts.
type Handler struct {
	svc    *service.Service
	policy engine.Evaluator
}

// NewHandler returns a prompt Handler.
func NewHandler(svc *service.Service, policy engine.Evaluator) *Handler {
	return &Handler{svc: svc, policy: policy}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router, rl *ratelimit.Limiter) {
	r.With(rl.Limit("prompts_read", ratelimit.PromptRead)).Get("/prompts", h.list)
	r.With(rl.Limit("prompts_read", ratelimit.PromptRead)).Get("/prompts/{key}/latest", h.latest)
	r.With(rl.Limit("prompts_patch", ratelimit.PromptPatch)).Patch("/prompts/{key}", h.update)
}

type updateRequest struct {
	Body string `json:"body"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	out, err := h.svc.List(r.Context(), tc)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	out, err := h.svc.Latest(r.Context(), tc, chi.URLParam(r, "key"))
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.Authorize(r.Context(), h.policy, engine.ActionPromptUpdate, engine.ScopeTenant)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	var req updateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	out, err := h.svc.Update(r.Context(), tc, chi.URLParam(r, "key"), req.Body)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrUnknownKey):
		return httpx.NewError(http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrPromptMissing):
		return httpx.NewError(http.StatusNotFound, "Prompt not found")
	case errors.Is(err, service.ErrEmptyBody):
		return httpx.NewError(http.StatusBadRequest, "body cannot be empty")
	}
	return err
}
