package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"praxis-pilot/backend/internal/audit"
	auditdomain "praxis-pilot/backend/internal/audit/domain"
	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/policy/engine"
	"praxis-pilot/backend/internal/prompt/domain"
	"praxis-pilot/backend/internal/prompt/service"
	"praxis-pilot/backend/internal/tenancy"
)

type stubRepo struct {
	versions map[string]int
	bodies   map[string]string
}

func (s *stubRepo) Latest(ctx context.Context, key string) (*domain.Prompt, error) {
	v, ok := s.versions[key]
	if !ok {
		return nil, nil
	}
	return &domain.Prompt{Key: key, Version: v, Body: s.bodies[key]}, nil
}

func (s *stubRepo) ActiveVersions(ctx context.Context) (map[string]int, error) {
	return s.versions, nil
}

func (s *stubRepo) GlobalPromptID(ctx context.Context, key string) (string, error) {
	if _, ok := s.versions[key]; ok {
		return "p-" + key, nil
	}
	return "", nil
}

func (s *stubRepo) EnsureGlobal(ctx context.Context, key, name string) (string, error) {
	return "p-" + key, nil
}

func (s *stubRepo) AddVersion(ctx context.Context, id, body string) (int, error) {
	key := strings.TrimPrefix(id, "p-")
	s.versions[key]++
	s.bodies[key] = body
	return s.versions[key], nil
}

type nopRecorder struct{}

func (nopRecorder) Record(ctx context.Context, e audit.Entry) error            { return nil }
func (nopRecorder) RecordUsage(ctx context.Context, u auditdomain.Usage) error { return nil }

func newRouter(t *testing.T, tc *tenancy.Context) http.Handler {
	t.Helper()
	repo := &stubRepo{
		versions: map[string]int{domain.KeyChatWithAI: 3},
		bodies:   map[string]string{domain.KeyChatWithAI: "body v3"},
	}
	ev, err := engine.NewOPAEvaluator(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(service.NewService(&db.DirectRunner{}, repo, nopRecorder{}), ev)
	r := chi.NewRouter()
	if tc != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(tenancy.With(req.Context(), *tc)))
			})
		})
	}
	h.Register(r, ratelimit.Disabled())
	return r
}

var (
	userTC  = tenancy.Context{TenantID: "11111111-1111-1111-1111-111111111111", UserID: "22222222-2222-2222-2222-222222222222", Roles: []string{"user"}}
	adminTC = tenancy.Context{TenantID: "11111111-1111-1111-1111-111111111111", UserID: "33333333-3333-3333-3333-333333333333", Roles: []string{"admin"}}
)

func TestList(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t, &userTC).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prompts", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out []service.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 6 || out[0].Version != 3 {
		t.Errorf("out = %+v", out)
	}
}

func TestUnauthenticated(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prompts", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLatest_UnknownKey(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t, &userTC).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prompts/NOPE/latest", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUpdate_RequiresAdmin(t *testing.T) {
	body := `{"body":"new"}`
	rec := httptest.NewRecorder()
	newRouter(t, &userTC).ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/prompts/CHAT_WITH_AI", strings.NewReader(body)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newRouter(t, &adminTC).ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/prompts/CHAT_WITH_AI", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d: %s", rec.Code, rec.Body.String())
	}
	var out service.Detail
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Version != 4 || out.Body != "new" {
		t.Errorf("out = %+v", out)
	}
}

func TestUpdate_EmptyBody(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t, &adminTC).ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/prompts/CHAT_WITH_AI", strings.NewReader(`{"body":"  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
