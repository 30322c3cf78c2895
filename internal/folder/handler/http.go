package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"praxis-pilot/backend/internal/folder/domain"
	"praxis-pilot/backend/internal/folder/service"
	"praxis-pilot/backend/internal/platform/httpx"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/platform/rbac"
)

// Handler serves folders under /folders.
type Handler struct {
	svc *service.Service
}

// NewHandler returns a folder Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router, rl *ratelimit.Limiter) {
	r.Route("/folders", func(r chi.Router) {
		r.Use(rl.Limit("folders", ratelimit.Folders))
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Patch("/{id}", h.rename)
		r.Delete("/{id}", h.delete)
	})
}

type nameRequest struct {
	Name string `json:"name"`
}

type folderResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(f *domain.Folder) folderResponse {
	return folderResponse{ID: f.ID, Name: f.Name, CreatedAt: f.CreatedAt}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	var req nameRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	f, err := h.svc.Create(r.Context(), tc, req.Name)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(f))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	folders, err := h.svc.List(r.Context(), tc)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	out := make([]folderResponse, 0, len(folders))
	for _, f := range folders {
		out = append(out, toResponse(f))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	id, ok := folderID(w, r)
	if !ok {
		return
	}
	var req nameRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	f, err := h.svc.Rename(r.Context(), tc, id, req.Name)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(f))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	id, ok := folderID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), tc, id); err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func folderID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "Folder not found")
		return "", false
	}
	return id, true
}

func mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrNameRequired):
		return httpx.NewError(http.StatusBadRequest, "Folder name required")
	case errors.Is(err, service.ErrNameTooLong):
		return httpx.NewError(http.StatusBadRequest, "Folder name must be at most 100 characters")
	case errors.Is(err, service.ErrDuplicateName):
		return httpx.NewError(http.StatusConflict, "Folder with this name already exists")
	case errors.Is(err, service.ErrNotFound):
		return httpx.NewError(http.StatusNotFound, "Folder not found")
	}
	return err
}
