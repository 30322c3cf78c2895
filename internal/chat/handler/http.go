package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"praxis-pilot/backend/internal/chat/domain"
	"praxis-pilot/backend/internal/chat/repository"
	"praxis-pilot/backend/internal/chat/service"
	"praxis-pilot/backend/internal/llm"
	"praxis-pilot/backend/internal/platform/httpx"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/platform/rbac"
)

// Handler serves chats under /chats.
type Handler struct {
	svc *service.Service
}

// NewHandler returns a chat Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router, rl *ratelimit.Limiter) {
	r.With(rl.Limit("chats_create", ratelimit.ChatCreate)).Post("/chats", h.create)
	r.With(rl.Limit("chats_read", ratelimit.ChatRead)).Get("/chats", h.list)
	r.With(rl.Limit("chats_read", ratelimit.ChatRead)).Get("/chats/{id}", h.get)
	r.With(rl.Limit("chats_patch", ratelimit.ChatPatch)).Patch("/chats/{id}", h.patch)
	r.With(rl.Limit("chats_delete", ratelimit.ChatDelete)).Delete("/chats/{id}", h.delete)
	r.With(rl.Limit("chats_finalize", ratelimit.ChatFinalize)).Post("/chats/{id}/finalize", h.finalize)
	r.With(rl.Limit("chats_send", ratelimit.ChatSend)).Post("/chats/{id}/messages", h.send)
	r.With(rl.Limit("chats_export", ratelimit.ChatExport)).Get("/chats/{id}/export.txt", h.export(service.FormatText))
	r.With(rl.Limit("chats_export", ratelimit.ChatExport)).Get("/chats/{id}/export.pdf", h.export(service.FormatPDF))
}

type createRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type patchRequest struct {
	Title      *string         `json:"title"`
	IsFavorite *bool           `json:"is_favorite"`
	FolderID   json.RawMessage `json:"folder_id"`
	Metadata   *struct {
		SafeMode *bool `json:"safe_mode"`
	} `json:"metadata"`
}

type sendRequest struct {
	AssistModeKey        string `json:"assist_mode_key"`
	UserMessage          string `json:"user_message"`
	AnonymizationEnabled *bool  `json:"anonymization_enabled"`
	SafeMode             bool   `json:"safe_mode"`
}

type chatResponse struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	FolderID   *string         `json:"folder_id"`
	IsFavorite bool            `json:"is_favorite"`
	Status     string          `json:"status"`
	Metadata   domain.Metadata `json:"metadata"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type detailResponse struct {
	chatResponse
	Messages      []messageResponse `json:"messages"`
	AwaitingReply bool              `json:"awaiting_reply"`
}

func toResponse(c *domain.Chat) chatResponse {
	return chatResponse{
		ID:         c.ID,
		Title:      c.Title,
		FolderID:   c.FolderID,
		IsFavorite: c.IsFavorite,
		Status:     string(c.Status),
		Metadata:   c.Metadata,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	var req createRequest
	if r.ContentLength != 0 {
		if err := httpx.Decode(r, &req); err != nil {
			httpx.WriteErr(w, err)
			return
		}
	}
	c, err := h.svc.Create(r.Context(), tc, req.Title)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(c))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	q := r.URL.Query()
	f := repository.ListFilter{FolderID: q.Get("folder_id")}
	if v := q.Get("unfiled_only"); v != "" {
		f.UnfiledOnly, err = strconv.ParseBool(v)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "unfiled_only must be a boolean")
			return
		}
	}
	if f.FolderID != "" && f.UnfiledOnly {
		httpx.WriteError(w, http.StatusBadRequest, "folder_id and unfiled_only are mutually exclusive")
		return
	}
	if f.FolderID != "" && !validID(f.FolderID) {
		httpx.WriteError(w, http.StatusBadRequest, "folder_id must be a UUID")
		return
	}
	chats, err := h.svc.List(r.Context(), tc, f)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	out := make([]chatResponse, 0, len(chats))
	for _, c := range chats {
		out = append(out, toResponse(c))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
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
	out := detailResponse{chatResponse: toResponse(d.Chat), Messages: make([]messageResponse, 0, len(d.Messages)), AwaitingReply: d.AwaitingReply}
	for _, m := range d.Messages {
		out.Messages = append(out.Messages, messageResponse{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	var req patchRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	p := service.Patch{Title: req.Title, IsFavorite: req.IsFavorite}
	if req.Metadata != nil {
		p.SafeMode = req.Metadata.SafeMode
	}
	if len(req.FolderID) > 0 {
		p.FolderSet = true
		if !bytes.Equal(req.FolderID, []byte("null")) {
			var folder string
			if err := json.Unmarshal(req.FolderID, &folder); err != nil || !validID(folder) {
				httpx.WriteError(w, http.StatusBadRequest, "folder_id must be a UUID or null")
				return
			}
			p.FolderID = &folder
		}
	}
	c, err := h.svc.Update(r.Context(), tc, id, p)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(c))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), tc, id); err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Finalize(r.Context(), tc, id)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"id": c.ID, "status": string(c.Status)})
}

func (h *Handler) export(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tc, err := rbac.RequireMember(r.Context())
		if err != nil {
			httpx.WriteErr(w, err)
			return
		}
		id, ok := chatID(w, r)
		if !ok {
			return
		}
		exp, err := h.svc.Export(r.Context(), tc, id, format)
		if err != nil {
			httpx.WriteErr(w, mapError(err))
			return
		}
		w.Header().Set("Content-Type", exp.ContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+exp.Filename+`"`)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(exp.Body); err != nil {
			log.Printf("chat: write export: %v", err)
		}
	}
}

// sseSink forwards send events to the client as token, error and done frames.
type sseSink struct {
	sse *httpx.SSEWriter
}

func (s sseSink) Token(text string) error {
	return s.sse.Event("token", map[string]string{"text": text})
}

func (s sseSink) Error(message string) error {
	return s.sse.Event("error", map[string]string{"message": message})
}

func (s sseSink) Done(messageID string, usage llm.Usage) error {
	return s.sse.Event("done", map[string]any{"message_id": messageID, "usage": usage})
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.RequireMember(r.Context())
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	id, ok := chatID(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	sse, err := httpx.NewSSEWriter(w)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	in := service.SendInput{
		AssistModeKey: req.AssistModeKey,
		UserMessage:   req.UserMessage,
		Anonymize:     req.AnonymizationEnabled == nil || *req.AnonymizationEnabled,
		SafeMode:      req.SafeMode,
		CorrelationID: correlationID(r),
	}
	err = h.svc.Send(r.Context(), tc, id, in, sseSink{sse: sse})
	if err == nil {
		return
	}
	if sse.Started() {
		log.Printf("chat: send chat=%s: %v", id, err)
		return
	}
	httpx.WriteErr(w, mapError(err))
}

func correlationID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

func validID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// chatID reads {id}. Malformed ids are reported as not found.
func chatID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		httpx.WriteError(w, http.StatusNotFound, "Chat not found")
		return "", false
	}
	return id, true
}

func mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrChatNotFound):
		return httpx.NewError(http.StatusNotFound, "Chat not found")
	case errors.Is(err, domain.ErrAlreadyFinalized):
		return httpx.NewError(http.StatusConflict, "Chat already finalized")
	case errors.Is(err, service.ErrChatFinalized):
		return httpx.NewError(http.StatusConflict, service.MsgFinalized)
	case errors.Is(err, service.ErrNoUpdates):
		return httpx.NewError(http.StatusBadRequest, "No updates provided")
	case errors.Is(err, service.ErrTitleRequired):
		return httpx.NewError(http.StatusBadRequest, "title cannot be empty")
	case errors.Is(err, service.ErrTitleTooLong):
		return httpx.NewError(http.StatusBadRequest, "title must be at most 200 characters")
	case errors.Is(err, service.ErrFolderNotFound):
		return httpx.NewError(http.StatusNotFound, "Folder not found")
	case errors.Is(err, service.ErrInvalidAssistMode):
		return httpx.NewError(http.StatusBadRequest, "Invalid assist_mode_key")
	case errors.Is(err, service.ErrEmptyMessage):
		return httpx.NewError(http.StatusBadRequest, "user_message required")
	case errors.Is(err, service.ErrUnknownFormat):
		return httpx.NewError(http.StatusNotFound, "Not found")
	}
	return err
}
