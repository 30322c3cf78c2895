package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	chatservice "praxis-pilot/backend/internal/chat/service"
	"praxis-pilot/backend/internal/document/domain"
	"praxis-pilot/backend/internal/document/service"
	"praxis-pilot/backend/internal/llm"
	"praxis-pilot/backend/internal/platform/httpx"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/platform/rbac"
)

// Handler serves /chats/{id}/structured-document.
type Handler struct {
	svc *service.Service
}

// NewHandler returns a structured document Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router, rl *ratelimit.Limiter) {
	r.With(rl.Limit("chats_read", ratelimit.ChatRead)).Get("/chats/{id}/structured-document", h.get)
	r.With(rl.Limit("structured_document_write", ratelimit.DocumentWrite)).Put("/chats/{id}/structured-document", h.put)
	r.With(rl.Limit("structured_document_write", ratelimit.DocumentWrite)).Post("/chats/{id}/structured-document/convert", h.convert)
}

type putRequest struct {
	Content map[string]any `json:"content" validate:"required"`
}

type documentResponse struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Version        int            `json:"version"`
	Content        domain.Content `json:"content"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func toResponse(d *domain.Document) documentResponse {
	return documentResponse{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		Version:        d.Version,
		Content:        d.Content,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	d, err := h.svc.Get(r.Context(), tc, id)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(d))
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	var req putRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	d, err := h.svc.Put(r.Context(), tc, id, req.Content)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(d))
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	reqID := middleware.GetReqID(r.Context())
	if reqID == "" {
		reqID = r.Header.Get("X-Request-ID")
	}
	d, err := h.svc.Generate(r.Context(), tc, id, reqID)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(d))
}

// chatID reads {id}. Malformed ids are reported as not found.
func chatID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "Chat not found")
		return "", false
	}
	return id, true
}

func mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return httpx.NewError(http.StatusNotFound, "Structured document not found")
	case errors.Is(err, chatservice.ErrChatNotFound):
		return httpx.NewError(http.StatusNotFound, "Chat not found")
	case errors.Is(err, chatservice.ErrChatFinalized):
		return httpx.NewError(http.StatusConflict, chatservice.MsgFinalized)
	case errors.Is(err, service.ErrNoMessages):
		return httpx.NewError(http.StatusBadRequest, "No messages in conversation")
	case errors.Is(err, service.ErrInvalidOutput):
		return httpx.NewError(http.StatusUnprocessableEntity, "LLM output was not valid JSON")
	case errors.Is(err, llm.ErrNotConfigured):
		return httpx.NewError(http.StatusServiceUnavailable, chatservice.MsgNotConfigured)
	case errors.Is(err, llm.ErrTimeout):
		return httpx.NewError(http.StatusGatewayTimeout, chatservice.MsgTimeout)
	case errors.Is(err, llm.ErrUpstream):
		return httpx.NewError(http.StatusBadGateway, chatservice.MsgUpstream)
	}
	return err
}
