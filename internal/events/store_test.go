package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"praxis-pilot/backend/internal/events/domain"
	teldomain "praxis-pilot/backend/internal/telemetry/domain"
	"praxis-pilot/backend/internal/tenancy"
)

const (
	tenantA = "00000000-0000-0000-0000-00000000000a"
	userA   = "00000000-0000-0000-0000-0000000000a1"
)

type memEventRepo struct {
	mu     sync.Mutex
	events []*domain.Event
	err    error
}

func (r *memEventRepo) Insert(_ context.Context, e *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, existing := range r.events {
		if existing.EventID == e.EventID {
			return errors.New("duplicate event_id")
		}
	}
	cp := *e
	r.events = append(r.events, &cp)
	return nil
}

func (r *memEventRepo) ListByEntity(_ context.Context, entityType, entityID string, limit int) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Event
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if e := r.events[i]; e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []*teldomain.Event
}

func (c *captureEmitter) Emit(_ context.Context, e *teldomain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureEmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func scoped() context.Context {
	return tenancy.With(context.Background(), tenancy.Context{TenantID: tenantA, UserID: userA})
}

func TestStore_Append(t *testing.T) {
	repo := &memEventRepo{}
	store := NewStore(repo, nil)
	conf := 0.9
	id, err := store.Append(scoped(), Append{
		EntityType: "chat",
		EntityID:   "c1",
		EventType:  "chat.finalized",
		Payload:    map[string]any{"b": 2, "a": 1},
		Confidence: &conf,
		Model:      "gpt-4",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if id == "" {
		t.Fatal("event id should be generated")
	}
	e := repo.events[0]
	if e.TenantID != tenantA || e.Actor != userA {
		t.Errorf("tenant/actor = %q/%q", e.TenantID, e.Actor)
	}
	if e.Source != DefaultSource || e.SchemaVersion != DefaultSchemaVersion {
		t.Errorf("defaults = %q/%q", e.Source, e.SchemaVersion)
	}
	if string(e.Payload) != `{"a":1,"b":2}` {
		t.Errorf("payload = %s", e.Payload)
	}
	if !VerifyDigest(e) {
		t.Error("digest does not match payload")
	}
	if e.Model == nil || *e.Model != "gpt-4" || e.Confidence == nil || *e.Confidence != 0.9 {
		t.Error("model and confidence should be stored")
	}
}

func TestStore_Append_Validation(t *testing.T) {
	store := NewStore(&memEventRepo{}, nil)
	bad := 1.5
	testCases := []struct {
		name string
		ctx  context.Context
		in   Append
		want error
	}{
		{"no tenant", context.Background(), Append{EntityType: "chat", EntityID: "1", EventType: "x"}, tenancy.ErrNoTenant},
		{"missing event type", scoped(), Append{EntityType: "chat", EntityID: "1"}, ErrInvalidEvent},
		{"missing entity", scoped(), Append{EventType: "x"}, ErrInvalidEvent},
		{"confidence out of range", scoped(), Append{EntityType: "chat", EntityID: "1", EventType: "x", Confidence: &bad}, ErrInvalidConfidence},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.Append(tc.ctx, tc.in); !errors.Is(err, tc.want) {
				t.Errorf("Append err = %v, want %v", err, tc.want)
			}
		})
	}
	if _, err := store.Append(scoped(), Append{EventID: "not-a-uuid", EntityType: "chat", EntityID: "1", EventType: "x"}); err == nil {
		t.Error("non-uuid event id should be rejected")
	}
}

func TestStore_Append_CallerEventIDAndRawPayload(t *testing.T) {
	repo := &memEventRepo{}
	store := NewStore(repo, nil)
	const eid = "5f0c6f2e-2b8b-4f7a-9d6e-6f4f1f2a9c11"
	id, err := store.Append(scoped(), Append{
		EventID: eid, EntityType: "ai_response", EntityID: "e1", EventType: "ai_response.created",
		Payload: json.RawMessage(`{"z": true, "a": [1, 2]}`),
	})
	if err != nil || id != eid {
		t.Fatalf("Append = %q, %v", id, err)
	}
	if string(repo.events[0].Payload) != `{"a":[1,2],"z":true}` {
		t.Errorf("payload = %s", repo.events[0].Payload)
	}
	if _, err := store.Append(scoped(), Append{EventID: eid, EntityType: "x", EntityID: "y", EventType: "z"}); err == nil {
		t.Error("duplicate event id should surface the repository error")
	}
}

func TestStore_Append_NotifiesWithoutPayload(t *testing.T) {
	em := &captureEmitter{}
	store := NewStore(&memEventRepo{}, em)
	_, err := store.Append(scoped(), Append{
		EntityType: "chat", EntityID: "c1", EventType: "chat.message_completed",
		Payload: map[string]string{"content": "clinical text"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for em.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if em.count() != 1 {
		t.Fatalf("notifications = %d, want 1", em.count())
	}
	note := em.events[0]
	if note.Attributes["domain_event_type"] != "chat.message_completed" || note.TenantID != tenantA {
		t.Errorf("note = %+v", note)
	}
	for k, v := range note.Attributes {
		if v == "clinical text" {
			t.Errorf("notification attribute %q leaked payload content", k)
		}
	}
}

func TestStore_History(t *testing.T) {
	repo := &memEventRepo{}
	store := NewStore(repo, nil)
	for _, typ := range []string{"chat.created", "chat.updated", "chat.finalized"} {
		if _, err := store.Append(scoped(), Append{EntityType: "chat", EntityID: "c1", EventType: typ}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.History(scoped(), "chat", "c1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 3 || got[0].EventType != "chat.finalized" {
		t.Errorf("History = %d events, first %q", len(got), got[0].EventType)
	}
}
