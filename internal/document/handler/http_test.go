package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"praxis-pilot/backend/internal/audit"
	auditdomain "praxis-pilot/backend/internal/audit/domain"
	chatdomain "praxis-pilot/backend/internal/chat/domain"
	chatservice "praxis-pilot/backend/internal/chat/service"
	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/document/domain"
	"praxis-pilot/backend/internal/document/service"
	"praxis-pilot/backend/internal/events"
	"praxis-pilot/backend/internal/llm"
	"praxis-pilot/backend/internal/platform/httpx"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/tenancy"
)

const (
	activeChat    = "44444444-4444-4444-4444-444444444444"
	finalizedChat = "55555555-5555-5555-5555-555555555555"
)

type stubRepo struct{ doc *domain.Document }

func (s *stubRepo) GetOwned(ctx context.Context, conversationID, ownerUserID string) (*domain.Document, error) {
	if s.doc == nil || s.doc.ConversationID != conversationID {
		return nil, nil
	}
	return s.doc, nil
}

func (s *stubRepo) Upsert(ctx context.Context, d *domain.Document) (bool, error) {
	created := s.doc == nil
	version := 1
	if !created {
		version = s.doc.Version + 1
	}
	d.ID = "66666666-6666-6666-6666-666666666666"
	d.Version = version
	d.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d.UpdatedAt = d.CreatedAt
	s.doc = d
	return created, nil
}

type stubChats struct{}

func (stubChats) EnsureMutable(ctx context.Context, tc tenancy.Context, id string) (*chatdomain.Chat, error) {
	switch id {
	case activeChat:
		return &chatdomain.Chat{ID: id, Status: chatdomain.StatusActive}, nil
	case finalizedChat:
		return nil, chatservice.ErrChatFinalized
	}
	return nil, chatservice.ErrChatNotFound
}

func (stubChats) Messages(ctx context.Context, id string) ([]*chatdomain.Message, error) {
	return []*chatdomain.Message{{Role: chatdomain.RoleUser, Content: "Hallo"}}, nil
}

type nopAppender struct{}

func (nopAppender) Append(ctx context.Context, a events.Append) (string, error) { return "", nil }

type nopRecorder struct{}

func (nopRecorder) Record(ctx context.Context, e audit.Entry) error            { return nil }
func (nopRecorder) RecordUsage(ctx context.Context, u auditdomain.Usage) error { return nil }

func newRouter(client llm.Client) http.Handler {
	tc := tenancy.Context{TenantID: "11111111-1111-1111-1111-111111111111", UserID: "22222222-2222-2222-2222-222222222222"}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.With(req.Context(), tc)))
		})
	})
	svc := service.NewService(&db.DirectRunner{}, &stubRepo{}, stubChats{}, stubChats{}, nopAppender{}, nopRecorder{}, client)
	NewHandler(svc).Register(r, ratelimit.Disabled())
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestPutThenGet(t *testing.T) {
	h := newRouter(llm.Disabled("openai"))
	path := "/chats/" + activeChat + "/structured-document"

	if rec := do(h, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get before put = %d", rec.Code)
	}
	rec := do(h, http.MethodPut, path, `{"content":{"homework":" Tagebuch ","extra_field":"x"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put = %d: %s", rec.Code, rec.Body.String())
	}
	var out documentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Version != 1 || out.ConversationID != activeChat || out.Content["homework"] != "Tagebuch" || len(out.Content) != len(domain.Fields) {
		t.Fatalf("out = %+v", out)
	}
	rec = do(h, http.MethodPut, path, `{"content":{"homework":"neu"}}`)
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.Version != 2 {
		t.Fatalf("second put = %+v, %v", out, err)
	}
	if rec := do(h, http.MethodGet, path, ""); rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
}

func TestErrors(t *testing.T) {
	h := newRouter(llm.Disabled("openai"))
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed id", http.MethodGet, "/chats/nope/structured-document", "", http.StatusNotFound},
		{"unknown chat", http.MethodPut, "/chats/77777777-7777-7777-7777-777777777777/structured-document", `{"content":{}}`, http.StatusNotFound},
		{"missing content", http.MethodPut, "/chats/" + activeChat + "/structured-document", `{}`, http.StatusBadRequest},
		{"finalized put", http.MethodPut, "/chats/" + finalizedChat + "/structured-document", `{"content":{}}`, http.StatusConflict},
		{"finalized convert", http.MethodPost, "/chats/" + finalizedChat + "/structured-document/convert", "", http.StatusConflict},
		{"convert unknown chat", http.MethodPost, "/chats/77777777-7777-7777-7777-777777777777/structured-document/convert", "", http.StatusNotFound},
		{"convert not configured", http.MethodPost, "/chats/" + activeChat + "/structured-document/convert", "", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(h, tt.method, tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrNoMessages, http.StatusBadRequest},
		{service.ErrInvalidOutput, http.StatusUnprocessableEntity},
		{llm.ErrTimeout, http.StatusGatewayTimeout},
		{llm.ErrUpstream, http.StatusBadGateway},
	}
	for _, tt := range tests {
		var he *httpx.Error
		if !errors.As(mapError(tt.err), &he) || he.Status != tt.want {
			t.Errorf("mapError(%v) = %v, want status %d", tt.err, mapError(tt.err), tt.want)
		}
	}
}
