package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"praxis-pilot/backend/internal/airesponse/domain"
	"praxis-pilot/backend/internal/airesponse/service"
	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/events"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/tenancy"
)

type stubRepo struct{ stored []*domain.Response }

func (s *stubRepo) LockEntity(ctx context.Context, tenantID, entityID string) error { return nil }
func (s *stubRepo) NextVersion(ctx context.Context, entityID string) (int, error) {
	return len(s.stored) + 1, nil
}
func (s *stubRepo) Insert(ctx context.Context, r *domain.Response) error {
	r.ID = "33333333-3333-3333-3333-333333333333"
	s.stored = append(s.stored, r)
	return nil
}
func (s *stubRepo) ListByEntity(ctx context.Context, entityID string) ([]*domain.Response, error) {
	return s.stored, nil
}
func (s *stubRepo) Get(ctx context.Context, id string) (*domain.Response, error) { return nil, nil }

type nopAppender struct{}

func (nopAppender) Append(ctx context.Context, a events.Append) (string, error) { return "", nil }

func newRouter() http.Handler {
	tc := tenancy.Context{TenantID: "11111111-1111-1111-1111-111111111111", UserID: "22222222-2222-2222-2222-222222222222"}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.With(req.Context(), tc)))
		})
	})
	NewHandler(service.NewService(&db.DirectRunner{}, &stubRepo{}, nopAppender{}, 0.85)).Register(r, ratelimit.Disabled())
	return r
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestProcess(t *testing.T) {
	h := newRouter()
	rec := post(h, "/ai-responses", `{"raw_markdown":"## Plan\nText","entity_type":"chat","entity_id":"e1","confidence":0.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out responseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Version != 1 || !out.NeedsReview || out.Model != service.DefaultModel || len(out.Blocks) != 2 {
		t.Fatalf("out = %+v", out)
	}
}

func TestProcess_Errors(t *testing.T) {
	h := newRouter()
	tests := []struct {
		name string
		body string
		want int
	}{
		{"script", `{"raw_markdown":"<script>x</script>","entity_type":"chat","entity_id":"e1"}`, http.StatusUnprocessableEntity},
		{"blank", `{"raw_markdown":" ","entity_type":"chat","entity_id":"e1"}`, http.StatusBadRequest},
		{"null markdown", `{"raw_markdown":null,"entity_type":"chat","entity_id":"e1"}`, http.StatusBadRequest},
		{"numeric markdown", `{"raw_markdown":17,"entity_type":"chat","entity_id":"e1"}`, http.StatusUnprocessableEntity},
		{"object markdown", `{"raw_markdown":{"text":"x"},"entity_type":"chat","entity_id":"e1"}`, http.StatusUnprocessableEntity},
		{"no entity", `{"raw_markdown":"x"}`, http.StatusBadRequest},
		{"confidence", `{"raw_markdown":"x","entity_type":"chat","entity_id":"e1","confidence":2}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := post(h, "/ai-responses", tt.body); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	h := newRouter()
	for _, id := range []string{"nope", "44444444-4444-4444-4444-444444444444"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ai-responses/"+id, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d", id, rec.Code)
		}
	}
}

func TestExecuteAction(t *testing.T) {
	rec := post(newRouter(), "/ai-responses/actions/execute", `{"command":"open_plan","label":"Plan","confidence":0.9,"entity_type":"chat","entity_id":"e1"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"command":"open_plan"`) || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}
