// Package events is the single write path into the append-only domain event log.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/events/domain"
	"praxis-pilot/backend/internal/events/repository"
	"praxis-pilot/backend/internal/security"
	"praxis-pilot/backend/internal/telemetry"
	teldomain "praxis-pilot/backend/internal/telemetry/domain"
	"praxis-pilot/backend/internal/tenancy"
)

const (
	// DefaultSource identifies events written by this service.
	DefaultSource = "praxis-pilot-api"
	// DefaultSchemaVersion is the payload schema version when the caller sets none.
	DefaultSchemaVersion = "1"
)

var (
	// ErrInvalidEvent is returned when a required field is missing.
	ErrInvalidEvent = errors.New("events: entity_type, entity_id and event_type are required")
	// ErrInvalidConfidence is returned when confidence is outside [0, 1].
	ErrInvalidConfidence = errors.New("events: confidence must be between 0 and 1")
)

// Append describes one event to record. Actor defaults to the scope's user id.
type Append struct {
	EventID       string
	Actor         string
	EntityType    string
	EntityID      string
	EventType     string
	Payload       any
	Source        string
	SchemaVersion string
	Confidence    *float64
	Model         string
}

// Appender is what services depend on to record events.
type Appender interface {
	Append(ctx context.Context, a Append) (string, error)
}

// Store appends events within the caller's tenant scope.
type Store struct {
	repo     repository.Repository
	notifier telemetry.EventEmitter
	now      func() time.Time
}

// NewStore returns a Store. notifier may be nil.
func NewStore(repo repository.Repository, notifier telemetry.EventEmitter) *Store {
	return &Store{repo: repo, notifier: notifier, now: func() time.Time { return time.Now().UTC() }}
}

// Append inserts one immutable event and returns its event_id. The tenant comes from the
// active scope, never from the caller. A content-free notification is emitted after the
// scope commits.
func (s *Store) Append(ctx context.Context, a Append) (string, error) {
	tc, err := tenancy.Require(ctx)
	if err != nil {
		return "", err
	}
	if a.EntityType == "" || a.EntityID == "" || a.EventType == "" {
		return "", ErrInvalidEvent
	}
	if a.Confidence != nil && (*a.Confidence < 0 || *a.Confidence > 1) {
		return "", ErrInvalidConfidence
	}
	eventID := a.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	} else if _, err := uuid.Parse(eventID); err != nil {
		return "", fmt.Errorf("events: event_id: %w", err)
	}
	payload, err := canonicalPayload(a.Payload)
	if err != nil {
		return "", err
	}
	e := &domain.Event{
		TenantID:      tc.TenantID,
		EventID:       eventID,
		Timestamp:     s.now(),
		Actor:         firstNonEmpty(a.Actor, tc.UserID, "system"),
		EntityType:    a.EntityType,
		EntityID:      a.EntityID,
		EventType:     a.EventType,
		Payload:       payload,
		PayloadDigest: security.Digest(payload),
		Source:        firstNonEmpty(a.Source, DefaultSource),
		SchemaVersion: firstNonEmpty(a.SchemaVersion, DefaultSchemaVersion),
		Confidence:    a.Confidence,
	}
	if a.Model != "" {
		model := a.Model
		e.Model = &model
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return "", fmt.Errorf("events: append %s: %w", a.EventType, err)
	}
	if s.notifier != nil {
		note := &teldomain.Event{
			TenantID:  e.TenantID,
			UserID:    tc.UserID,
			EventType: teldomain.EventDomain,
			Source:    e.Source,
			Attributes: map[string]string{
				"domain_event_type": e.EventType,
				"entity_type":       e.EntityType,
				"entity_id":         e.EntityID,
				"event_id":          e.EventID,
			},
			CreatedAt: e.Timestamp,
		}
		db.AfterCommit(ctx, func() { telemetry.EmitAsync(s.notifier, note) })
	}
	return eventID, nil
}

// History returns the most recent events for an entity.
func (s *Store) History(ctx context.Context, entityType, entityID string, limit int) ([]*domain.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByEntity(ctx, entityType, entityID, limit)
}

// VerifyDigest reports whether e's payload still matches its recorded digest.
func VerifyDigest(e *domain.Event) bool {
	return string(security.Digest(e.Payload)) == string(e.PayloadDigest)
}

func canonicalPayload(p any) (json.RawMessage, error) {
	switch v := p.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		// Round-trip through a generic value so key order is normalized.
		var generic any
		if err := json.Unmarshal(v, &generic); err != nil {
			return nil, fmt.Errorf("events: payload: %w", err)
		}
		p = generic
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("events: payload: %w", err)
	}
	return b, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
