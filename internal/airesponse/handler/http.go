package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"praxis-pilot/backend/internal/airesponse/domain"
	"praxis-pilot/backend/internal/airesponse/service"
	"praxis-pilot/backend/internal/platform/httpx"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/platform/rbac"
	"praxis-pilot/backend/internal/render"
)

// Handler serves rendered AI responses under /ai-responses.
type Handler struct {
	svc *service.Service
}

// NewHandler returns an AI response Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router, rl *ratelimit.Limiter) {
	r.With(rl.Limit("ai_responses_write", ratelimit.AIResponseWrite)).Post("/ai-responses", h.process)
	r.With(rl.Limit("ai_responses_read", ratelimit.AIResponseRead)).Get("/ai-responses", h.list)
	r.With(rl.Limit("ai_responses_read", ratelimit.AIResponseRead)).Get("/ai-responses/{id}", h.get)
	r.With(rl.Limit("ai_actions", ratelimit.AIAction)).Post("/ai-responses/actions/execute", h.execute)
}

type processRequest struct {
	RawMarkdown any      `json:"raw_markdown"`
	EntityType  string   `json:"entity_type"`
	EntityID    string   `json:"entity_id"`
	Model       string   `json:"model" validate:"max=100"`
	Confidence  *float64 `json:"confidence"`
}

type actionRequest struct {
	Command    string  `json:"command" validate:"required,max=200"`
	Label      string  `json:"label" validate:"required,max=200"`
	Confidence float64 `json:"confidence"`
	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
}

type responseBody struct {
	ID          string         `json:"id"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	RawMarkdown string         `json:"raw_markdown"`
	Blocks      []render.Block `json:"structured_blocks"`
	Model       string         `json:"model"`
	Confidence  float64        `json:"confidence"`
	Version     int            `json:"version"`
	NeedsReview bool           `json:"needs_review"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (h *Handler) toBody(r *domain.Response) responseBody {
	blocks := r.Blocks
	if blocks == nil {
		blocks = []render.Block{}
	}
	return responseBody{
		ID:          r.ID,
		EntityType:  r.EntityType,
		EntityID:    r.EntityID,
		RawMarkdown: r.RawMarkdown,
		Blocks:      blocks,
		Model:       r.Model,
		Confidence:  r.Confidence,
		Version:     r.Version,
		NeedsReview: r.NeedsReview(h.svc.Threshold()),
		CreatedAt:   r.CreatedAt,
	}
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	var req processRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	confidence := 1.0
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	resp, err := h.svc.Process(r.Context(), tc, service.Input{
		RawMarkdown: req.RawMarkdown,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		Model:       req.Model,
		Confidence:  confidence,
	})
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toBody(resp))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	rows, err := h.svc.List(r.Context(), tc, r.URL.Query().Get("entity_id"))
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	out := make([]responseBody, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.toBody(row))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "AI response not found")
		return
	}
	resp, err := h.svc.Get(r.Context(), tc, id)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toBody(resp))
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	var req actionRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	err = h.svc.ExecuteAction(r.Context(), tc, service.Action{
		Command:    req.Command,
		Label:      req.Label,
		Confidence: req.Confidence,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
	})
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "command": req.Command})
}

func mapError(err error) error {
	var se *service.SanitizationError
	switch {
	case errors.As(err, &se):
		return httpx.NewError(http.StatusUnprocessableEntity, se.Reason)
	case errors.Is(err, service.ErrMarkdownRequired):
		return httpx.NewError(http.StatusBadRequest, "raw_markdown required")
	case errors.Is(err, service.ErrEntityRequired):
		return httpx.NewError(http.StatusBadRequest, "entity_type and entity_id required")
	case errors.Is(err, service.ErrEntityTooLong):
		return httpx.NewError(http.StatusBadRequest, "entity_type or entity_id too long")
	case errors.Is(err, service.ErrInvalidConfidence):
		return httpx.NewError(http.StatusBadRequest, "confidence must be between 0 and 1")
	case errors.Is(err, service.ErrCommandRequired):
		return httpx.NewError(http.StatusBadRequest, "command and label required")
	case errors.Is(err, service.ErrNotFound):
		return httpx.NewError(http.StatusNotFound, "AI response not found")
	}
	return err
}
