package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"praxis-pilot/backend/internal/intervention/domain"
	"praxis-pilot/backend/internal/intervention/service"
	"praxis-pilot/backend/internal/platform/httpx"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/platform/rbac"
)

// Handler serves the intervention library under /interventions.
type Handler struct {
	svc *service.Service
}

// NewHandler returns an intervention Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router, rl *ratelimit.Limiter) {
	r.Route("/interventions", func(r chi.Router) {
		r.Use(rl.Limit("interventions", ratelimit.Interventions))
		r.Get("/", h.list)
		r.Post("/{id}/viewed", h.viewed)
	})
}

type interventionResponse struct {
	ID            string   `json:"id"`
	Category      string   `json:"category"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	EvidenceLevel *string  `json:"evidence_level"`
	References    []string `json:"references"`
}

func toResponse(in *domain.Intervention) interventionResponse {
	out := interventionResponse{
		ID:            in.ID,
		Category:      in.Category,
		Title:         in.Title,
		Description:   in.Description,
		EvidenceLevel: in.EvidenceLevel,
	}
	if len(in.References) > 0 {
		out.References = in.References
	}
	return out
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	rows, err := h.svc.List(r.Context(), tc, r.URL.Query().Get("category"))
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	out := make([]interventionResponse, 0, len(rows))
	for _, in := range rows {
		out = append(out, toResponse(in))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) viewed(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "Intervention not found")
		return
	}
	if err := h.svc.Viewed(r.Context(), tc, id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			err = httpx.NewError(http.StatusNotFound, "Intervention not found")
		}
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}
