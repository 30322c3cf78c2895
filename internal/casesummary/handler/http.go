package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"praxis-pilot/backend/internal/casesummary/service"
	"praxis-pilot/backend/internal/llm"
	"praxis-pilot/backend/internal/platform/httpx"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/platform/rbac"
)

// Handler serves POST /cases/summary.
type Handler struct {
	svc *service.Service
}

// NewHandler returns a case summary Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router, rl *ratelimit.Limiter) {
	r.With(rl.Limit("case_summary", ratelimit.CaseSummary)).Post("/cases/summary", h.summarize)
}

type summaryRequest struct {
	ConversationIDs []string `json:"conversation_ids"`
}

func (h *Handler) summarize(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	var req summaryRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	out, err := h.svc.Summarize(r.Context(), tc, req.ConversationIDs, middleware.GetReqID(r.Context()))
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrNoConversations):
		return httpx.NewError(http.StatusBadRequest, "conversation_ids required")
	case errors.Is(err, service.ErrTooManyIDs):
		return httpx.NewError(http.StatusBadRequest, "Max 20 conversations allowed")
	case errors.Is(err, service.ErrInvalidID):
		return httpx.NewError(http.StatusBadRequest, "conversation_ids must be UUIDs")
	case errors.Is(err, service.ErrNoneAccessible):
		return httpx.NewError(http.StatusNotFound, "No accessible conversations found")
	case errors.Is(err, llm.ErrNotConfigured):
		return httpx.NewError(http.StatusServiceUnavailable, "LLM provider not configured")
	case errors.Is(err, llm.ErrTimeout):
		return httpx.NewError(http.StatusGatewayTimeout, "LLM request timed out")
	case errors.Is(err, llm.ErrUpstream):
		return httpx.NewError(http.StatusBadGateway, "LLM request failed")
	}
	return err
}
