package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"praxis-pilot/backend/internal/admin/domain"
	"praxis-pilot/backend/internal/admin/service"
	auditdomain "praxis-pilot/backend/internal/audit/domain"
	"praxis-pilot/backend/internal/db"
	eventsdomain "praxis-pilot/backend/internal/events/domain"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/policy/engine"
	"praxis-pilot/backend/internal/tenancy"
)

type stubKPI struct{}

func (stubKPI) Summary(ctx context.Context, q domain.Query) (*domain.Summary, error) {
	return &domain.Summary{InputTokens: 3, OutputTokens: 4, TotalTokens: 7, RequestCount: 1}, nil
}
func (stubKPI) TokenBuckets(context.Context, domain.Query, string) ([]domain.TokenBucket, error) {
	return []domain.TokenBucket{}, nil
}
func (stubKPI) ChatBuckets(context.Context, domain.Query, string) ([]domain.ChatsBucket, error) {
	return []domain.ChatsBucket{}, nil
}
func (stubKPI) AssistModes(context.Context, domain.Query) ([]domain.AssistModeUsage, error) {
	return []domain.AssistModeUsage{}, nil
}
func (stubKPI) Models(context.Context, domain.Query) ([]domain.ModelUsage, error) {
	return []domain.ModelUsage{}, nil
}
func (stubKPI) ActiveDays(context.Context, domain.Query) ([]time.Time, float64, error) {
	return nil, 0, nil
}

type stubAudit struct{}

func (stubAudit) List(ctx context.Context, f auditdomain.Filter) ([]*auditdomain.AuditLog, error) {
	return []*auditdomain.AuditLog{{
		ID:        "00000000-0000-0000-0000-000000000001",
		ActorID:   "22222222-2222-2222-2222-222222222222",
		Action:    "chat.finalized",
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}}, nil
}

type stubHistory struct{}

func (stubHistory) History(ctx context.Context, entityType, entityID string, limit int) ([]*eventsdomain.Event, error) {
	return []*eventsdomain.Event{{
		EventID:   "ev-1",
		Actor:     "22222222-2222-2222-2222-222222222222",
		EventType: "chat.created",
		Payload:   []byte(`{"title":"Intake"}`),
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}}, nil
}

func newRouter(t *testing.T, roles ...string) http.Handler {
	t.Helper()
	ev, err := engine.NewOPAEvaluator(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	tc := tenancy.Context{TenantID: "11111111-1111-1111-1111-111111111111", UserID: "22222222-2222-2222-2222-222222222222", Roles: roles}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.With(req.Context(), tc)))
		})
	})
	NewHandler(service.NewService(&db.DirectRunner{}, stubKPI{}, stubAudit{}, stubHistory{}), ev).Register(r, ratelimit.Disabled())
	return r
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestScopeAuthorization(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		path  string
		want  int
	}{
		{"own kpis", nil, "/admin/kpis/summary", http.StatusOK},
		{"tenant kpis as user", []string{"user"}, "/admin/kpis/summary?scope=tenant", http.StatusForbidden},
		{"tenant kpis as admin", []string{"admin"}, "/admin/kpis/tokens?scope=tenant&granularity=week", http.StatusOK},
		{"own audit logs", nil, "/admin/audit-logs", http.StatusOK},
		{"tenant audit logs as user", nil, "/admin/audit-logs?scope=tenant", http.StatusForbidden},
		{"tenant audit logs as admin", []string{"admin"}, "/admin/audit-logs?scope=tenant&user_id=x", http.StatusOK},
		{"unknown scope is own", nil, "/admin/kpis/activity?scope=everyone", http.StatusOK},
		{"entity events as user", []string{"user"}, "/admin/events?entity_type=chat&entity_id=c1", http.StatusForbidden},
		{"entity events as admin", []string{"admin"}, "/admin/events?entity_type=chat&entity_id=c1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := get(newRouter(t, tt.roles...), tt.path); rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestAuditLogsValidation(t *testing.T) {
	h := newRouter(t)
	for _, path := range []string{
		"/admin/audit-logs?limit=0",
		"/admin/audit-logs?limit=201",
		"/admin/audit-logs?limit=abc",
		"/admin/audit-logs?from_ts=yesterday",
		"/admin/audit-logs?cursor=broken",
	} {
		if rec := get(h, path); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestAuditLogsBody(t *testing.T) {
	rec := get(newRouter(t), "/admin/audit-logs?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	items, _ := out["items"].([]any)
	if len(items) != 1 || out["next_cursor"] != nil {
		t.Fatalf("out = %v", out)
	}
	row := items[0].(map[string]any)
	if row["user_id"] != "22222222-2222-2222-2222-222222222222" || row["assist_mode"] != nil || row["total_tokens"] != float64(0) {
		t.Errorf("row = %v", row)
	}
}

func TestEntityEventsBody(t *testing.T) {
	h := newRouter(t, "admin")
	for _, path := range []string{
		"/admin/events?entity_id=c1",
		"/admin/events?entity_type=chat&entity_id=c1&limit=0",
		"/admin/events?entity_type=chat&entity_id=c1&limit=500",
	} {
		if rec := get(h, path); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}

	rec := get(h, "/admin/events?entity_type=chat&entity_id=c1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string][]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	items := out["items"]
	if len(items) != 1 {
		t.Fatalf("items = %v", items)
	}
	row := items[0]
	if row["event_id"] != "ev-1" || row["digest_ok"] != false {
		t.Errorf("row = %v, want ev-1 with a failed digest", row)
	}
	if _, ok := row["payload"]; ok {
		t.Error("payload exposed in event listing")
	}
}
