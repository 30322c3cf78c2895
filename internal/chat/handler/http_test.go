package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"praxis-pilot/backend/internal/audit"
	auditdomain "praxis-pilot/backend/internal/audit/domain"
	"praxis-pilot/backend/internal/chat/domain"
	"praxis-pilot/backend/internal/chat/repository"
	"praxis-pilot/backend/internal/chat/service"
	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/events"
	"praxis-pilot/backend/internal/llm"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/tenancy"
)

type stubRepo struct {
	mu    sync.Mutex
	chats map[string]*domain.Chat
	msgs  map[string][]*domain.Message
}

func (s *stubRepo) Create(ctx context.Context, c *domain.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uuid.NewString()
	c.Status = domain.StatusActive
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.chats[c.ID] = &cp
	return nil
}

func (s *stubRepo) ListByOwner(ctx context.Context, ownerID string, f repository.ListFilter) ([]*domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Chat
	for _, c := range s.chats {
		if c.OwnerUserID == ownerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubRepo) GetOwned(ctx context.Context, id, ownerID string) (*domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok || c.OwnerUserID != ownerID {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *stubRepo) LockOwned(ctx context.Context, id, ownerID string) (*domain.Chat, error) {
	return s.GetOwned(ctx, id, ownerID)
}

func (s *stubRepo) Update(ctx context.Context, c *domain.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.chats[c.ID] = &cp
	return nil
}

func (s *stubRepo) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, id)
	return true, nil
}

func (s *stubRepo) FolderExists(ctx context.Context, folderID string) (bool, error) {
	return false, nil
}

func (s *stubRepo) AddMessage(ctx context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now()
	cp := *m
	s.msgs[m.ChatID] = append(s.msgs[m.ChatID], &cp)
	return nil
}

func (s *stubRepo) Messages(ctx context.Context, chatID string) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Message(nil), s.msgs[chatID]...), nil
}

func (s *stubRepo) Touch(ctx context.Context, id string) error { return nil }

type nopAppender struct{}

func (nopAppender) Append(ctx context.Context, a events.Append) (string, error) { return "", nil }

type nopRecorder struct{}

func (nopRecorder) Record(ctx context.Context, e audit.Entry) error            { return nil }
func (nopRecorder) RecordUsage(ctx context.Context, u auditdomain.Usage) error { return nil }

type stubPrompts struct{}

func (stubPrompts) SystemPrompt(ctx context.Context, key string, safe bool) (string, error) {
	return "system", nil
}

type tokenLLM struct{ tokens []string }

func (t tokenLLM) Stream(ctx context.Context, req llm.Request, onToken func(string) error) (llm.Usage, error) {
	for _, tok := range t.tokens {
		if err := onToken(tok); err != nil {
			return llm.Usage{}, err
		}
	}
	return llm.Usage{PromptTokens: 3, CompletionTokens: len(t.tokens)}, nil
}

func (t tokenLLM) Complete(ctx context.Context, req llm.Request) (string, llm.Usage, error) {
	return strings.Join(t.tokens, ""), llm.Usage{}, nil
}

func (tokenLLM) Model() string    { return "gpt-test" }
func (tokenLLM) Configured() bool { return true }
func (tokenLLM) Close() error     { return nil }

var userTC = tenancy.Context{TenantID: "11111111-1111-1111-1111-111111111111", UserID: "22222222-2222-2222-2222-222222222222"}

func newRouter(tc *tenancy.Context) http.Handler {
	repo := &stubRepo{chats: map[string]*domain.Chat{}, msgs: map[string][]*domain.Message{}}
	svc := service.NewService(&db.DirectRunner{}, repo, nopAppender{}, nopRecorder{}, stubPrompts{}, tokenLLM{tokens: []string{"Hal", "lo"}}, 8000)
	r := chi.NewRouter()
	if tc != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(tenancy.With(req.Context(), *tc)))
			})
		})
	}
	NewHandler(svc).Register(r, ratelimit.Disabled())
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createChat(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/chats", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var out chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Title != domain.DefaultTitle || out.Status != "active" {
		t.Fatalf("created = %+v", out)
	}
	return out.ID
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return body.Detail
}

func TestUnauthenticated(t *testing.T) {
	if rec := do(t, newRouter(nil), http.MethodGet, "/chats", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLifecycle(t *testing.T) {
	h := newRouter(&userTC)
	id := createChat(t, h)

	if rec := do(t, h, http.MethodPatch, "/chats/"+id, `{}`); rec.Code != http.StatusBadRequest || detail(t, rec) != "No updates provided" {
		t.Fatalf("empty patch = %d %q", rec.Code, detail(t, rec))
	}
	if rec := do(t, h, http.MethodPatch, "/chats/"+id, `{"folder_id":"not-a-uuid"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad folder = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPatch, "/chats/"+id, `{"title":"Erstgespräch","folder_id":null,"metadata":{"safe_mode":true}}`); rec.Code != http.StatusOK {
		t.Fatalf("patch = %d: %s", rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodPost, "/chats/"+id+"/finalize", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"finalized"`) {
		t.Fatalf("finalize = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/chats/"+id+"/finalize", ""); rec.Code != http.StatusConflict {
		t.Fatalf("second finalize = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPatch, "/chats/"+id, `{"title":"x"}`)
	if rec.Code != http.StatusConflict || detail(t, rec) != service.MsgFinalized {
		t.Fatalf("patch finalized = %d %q", rec.Code, detail(t, rec))
	}
	if rec := do(t, h, http.MethodDelete, "/chats/"+id, ""); rec.Code != http.StatusConflict {
		t.Fatalf("delete finalized = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/chats/"+id+"/export.txt", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "# Erstgespräch") {
		t.Fatalf("export = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
}

func TestGet_NotFound(t *testing.T) {
	h := newRouter(&userTC)
	if rec := do(t, h, http.MethodGet, "/chats/"+uuid.NewString(), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/chats/abc", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("malformed = %d", rec.Code)
	}
}

func TestDelete(t *testing.T) {
	h := newRouter(&userTC)
	id := createChat(t, h)
	if rec := do(t, h, http.MethodDelete, "/chats/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
}

func TestSend_Stream(t *testing.T) {
	h := newRouter(&userTC)
	id := createChat(t, h)

	rec := do(t, h, http.MethodPost, "/chats/"+id+"/messages", `{"assist_mode_key":"CHAT_WITH_AI","user_message":"Hallo"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"event: token\ndata: {\"text\":\"Hal\"}\n\n",
		"event: token\ndata: {\"text\":\"lo\"}\n\n",
		"event: done\ndata: {\"message_id\":",
		`"usage":{"prompt_tokens":3,"completion_tokens":2}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}

	rec = do(t, h, http.MethodGet, "/chats/"+id, "")
	var d detailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	if len(d.Messages) != 2 || d.Messages[1].Content != "Hallo" || d.AwaitingReply {
		t.Fatalf("detail = %+v", d)
	}
}

func TestSend_ValidationBeforeStream(t *testing.T) {
	h := newRouter(&userTC)
	id := createChat(t, h)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad mode", `{"assist_mode_key":"NOPE","user_message":"x"}`, http.StatusBadRequest},
		{"blank message", `{"assist_mode_key":"CHAT_WITH_AI","user_message":" "}`, http.StatusBadRequest},
		{"missing mode", `{"user_message":"x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/chats/"+id+"/messages", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Fatalf("content type = %q", ct)
			}
		})
	}
}
