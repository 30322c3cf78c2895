package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"praxis-pilot/backend/internal/audit/domain"
	"praxis-pilot/backend/internal/tenancy"
)

// memAuditRepo implements the audit repository for tests.
type memAuditRepo struct {
	mu        sync.Mutex
	entries   []*domain.AuditLog
	usage     []*domain.Usage
	createErr error
}

func (m *memAuditRepo) Create(_ context.Context, a *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, a)
	return nil
}

func (m *memAuditRepo) CreateUsage(_ context.Context, u *domain.Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.usage = append(m.usage, u)
	return nil
}

func (m *memAuditRepo) List(context.Context, domain.Filter) ([]*domain.AuditLog, error) {
	return nil, nil
}

const (
	tenantID = "00000000-0000-0000-0000-000000000001"
	userID   = "00000000-0000-0000-0000-000000000002"
)

func scoped() context.Context {
	return tenancy.With(context.Background(), tenancy.Context{TenantID: tenantID, UserID: userID})
}

func TestLogger_Record(t *testing.T) {
	repo := &memAuditRepo{}
	logger := NewLogger(repo)
	err := logger.Record(scoped(), Entry{
		Action:     "folder.deleted",
		EntityType: "folder",
		EntityID:   "6b1f1c3e-7a0b-4c61-9d1b-2a4e5f6a7b8c",
		Metadata:   map[string]any{"chats_moved": 3},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.TenantID != tenantID || e.ActorID != userID {
		t.Errorf("tenant/actor = %q/%q", e.TenantID, e.ActorID)
	}
	if e.Action != "folder.deleted" || e.EntityID == "" {
		t.Errorf("entry = %+v", e)
	}
	if e.Metadata["chats_moved"] != 3 {
		t.Errorf("metadata = %v", e.Metadata)
	}
}

func TestLogger_Record_NonUUIDEntityMovesToMetadata(t *testing.T) {
	repo := &memAuditRepo{}
	if err := NewLogger(repo).Record(scoped(), Entry{Action: "ai_response.action_executed", EntityType: "session", EntityID: "session-42"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	e := repo.entries[0]
	if e.EntityID != "" || e.Metadata["entity_ref"] != "session-42" {
		t.Errorf("entity id = %q, metadata = %v", e.EntityID, e.Metadata)
	}
}

func TestLogger_Record_RejectsContent(t *testing.T) {
	repo := &memAuditRepo{}
	logger := NewLogger(repo)
	testCases := []struct {
		name string
		meta map[string]any
	}{
		{"long string", map[string]any{"note": strings.Repeat("x", 201)}},
		{"long list item", map[string]any{"ids": []string{strings.Repeat("y", 300)}}},
		{"nested map", map[string]any{"doc": map[string]string{"risk": "..."}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := logger.Record(scoped(), Entry{Action: "x", Metadata: tc.meta})
			if !errors.Is(err, ErrUnsafeMetadata) {
				t.Errorf("Record err = %v, want ErrUnsafeMetadata", err)
			}
		})
	}
	if len(repo.entries) != 0 {
		t.Error("rejected entries must not be written")
	}
}

func TestLogger_Record_RequiresTenant(t *testing.T) {
	if err := NewLogger(&memAuditRepo{}).Record(context.Background(), Entry{Action: "x"}); !errors.Is(err, tenancy.ErrNoTenant) {
		t.Errorf("Record err = %v, want ErrNoTenant", err)
	}
}

func TestLogger_Record_PropagatesRepoError(t *testing.T) {
	boom := errors.New("boom")
	err := NewLogger(&memAuditRepo{createErr: boom}).Record(scoped(), Entry{Action: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("Record err = %v, want wrapped boom", err)
	}
}

func TestLogger_RecordUsage(t *testing.T) {
	repo := &memAuditRepo{}
	err := NewLogger(repo).RecordUsage(scoped(), domain.Usage{
		AssistMode: "CHAT_WITH_AI", ModelName: "gpt-4o-mini", InputTokens: 10, OutputTokens: 20,
	})
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	u := repo.usage[0]
	if u.TenantID != tenantID || u.UserID != userID || u.InputTokens != 10 || u.OutputTokens != 20 {
		t.Errorf("usage = %+v", u)
	}
}

func TestSafeMetadata(t *testing.T) {
	out, err := SafeMetadata(map[string]any{"n": 2, "ok": true, "ids": []string{"a", "b"}, "f": 0.5, "none": nil})
	if err != nil {
		t.Fatalf("SafeMetadata: %v", err)
	}
	if len(out) != 5 {
		t.Errorf("out = %v", out)
	}
	if out, err := SafeMetadata(nil); out != nil || err != nil {
		t.Errorf("SafeMetadata(nil) = %v, %v", out, err)
	}
}
