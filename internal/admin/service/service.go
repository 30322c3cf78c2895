package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"praxis-pilot/backend/internal/admin/domain"
	"praxis-pilot/backend/internal/admin/repository"
	auditdomain "praxis-pilot/backend/internal/audit/domain"
	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/events"
	eventsdomain "praxis-pilot/backend/internal/events/domain"
	"praxis-pilot/backend/internal/tenancy"
)

// Sentinel errors for the admin service; handler maps them to HTTP statuses.
var (
	ErrInvalidLimit   = errors.New("limit must be between 1 and 200")
	ErrInvalidCursor  = errors.New("invalid cursor")
	ErrEntityRequired = errors.New("entity_type and entity_id are required")
)

// Audit log page sizes.
const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 200
)

// AuditLister reads audit rows inside the tenant scope.
type AuditLister interface {
	List(ctx context.Context, f auditdomain.Filter) ([]*auditdomain.AuditLog, error)
}

// EventHistory reads an entity's domain events inside the tenant scope.
type EventHistory interface {
	History(ctx context.Context, entityType, entityID string, limit int) ([]*eventsdomain.Event, error)
}

// EventRecord is the metadata of one domain event. Payloads stay in the event log.
type EventRecord struct {
	EventID       string
	Timestamp     time.Time
	Actor         string
	EventType     string
	Source        string
	SchemaVersion string
	DigestOK      bool
}

// AuditQuery filters the audit log. Tenant-wide queries may name a UserID; own-scope
// queries are always limited to the caller.
type AuditQuery struct {
	TenantScope bool
	From        *time.Time
	To          *time.Time
	AssistMode  string
	Action      string
	ModelName   string
	UserID      string
	Search      string
	Cursor      string
	Limit       int
}

// AuditPage is one page of audit rows, newest first. NextCursor is empty on the last page.
type AuditPage struct {
	Items      []*auditdomain.AuditLog
	NextCursor string
}

// Service serves usage KPIs and the audit log. Callers authorize the scope first.
type Service struct {
	scope   db.Runner
	repo    repository.Repository
	audit   AuditLister
	history EventHistory
	now     func() time.Time
}

// NewService returns an admin Service.
func NewService(scope db.Runner, repo repository.Repository, audit AuditLister, history EventHistory) *Service {
	return &Service{scope: scope, repo: repo, audit: audit, history: history, now: time.Now}
}

func (s *Service) query(tc tenancy.Context, tenantScope bool, rangeVal string) domain.Query {
	from, to := domain.Window(rangeVal, s.now())
	q := domain.Query{From: from, To: to}
	if !tenantScope {
		q.UserID = tc.UserID
	}
	return q
}

// Summary totals tokens, requests and created chats.
func (s *Service) Summary(ctx context.Context, tc tenancy.Context, tenantScope bool, rangeVal string) (*domain.Summary, error) {
	var out *domain.Summary
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		out, err = s.repo.Summary(ctx, s.query(tc, tenantScope, rangeVal))
		return err
	})
	return out, err
}

// Tokens buckets token usage by granularity.
func (s *Service) Tokens(ctx context.Context, tc tenancy.Context, tenantScope bool, rangeVal, granularity string) ([]domain.TokenBucket, error) {
	var out []domain.TokenBucket
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		out, err = s.repo.TokenBuckets(ctx, s.query(tc, tenantScope, rangeVal), domain.Granularity(granularity))
		return err
	})
	return out, err
}

// ChatsCreated buckets chat creation by granularity.
func (s *Service) ChatsCreated(ctx context.Context, tc tenancy.Context, tenantScope bool, rangeVal, granularity string) ([]domain.ChatsBucket, error) {
	var out []domain.ChatsBucket
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		out, err = s.repo.ChatBuckets(ctx, s.query(tc, tenantScope, rangeVal), domain.Granularity(granularity))
		return err
	})
	return out, err
}

// AssistModes groups usage by assist mode, busiest first.
func (s *Service) AssistModes(ctx context.Context, tc tenancy.Context, tenantScope bool, rangeVal string) ([]domain.AssistModeUsage, error) {
	var out []domain.AssistModeUsage
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		out, err = s.repo.AssistModes(ctx, s.query(tc, tenantScope, rangeVal))
		return err
	})
	return out, err
}

// Models groups usage by model, busiest first.
func (s *Service) Models(ctx context.Context, tc tenancy.Context, tenantScope bool, rangeVal string) ([]domain.ModelUsage, error) {
	var out []domain.ModelUsage
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		out, err = s.repo.Models(ctx, s.query(tc, tenantScope, rangeVal))
		return err
	})
	return out, err
}

// Activity counts active days, the current streak and average tokens per request.
func (s *Service) Activity(ctx context.Context, tc tenancy.Context, tenantScope bool, rangeVal string) (*domain.Activity, error) {
	var (
		days []time.Time
		avg  float64
	)
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		days, avg, err = s.repo.ActiveDays(ctx, s.query(tc, tenantScope, rangeVal))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &domain.Activity{
		ActiveDaysCount:     len(days),
		CurrentStreakDays:   domain.CurrentStreak(days),
		AvgTokensPerRequest: math.Round(avg*10) / 10,
	}, nil
}

// AuditLogs returns one keyset page of the audit log.
func (s *Service) AuditLogs(ctx context.Context, tc tenancy.Context, q AuditQuery) (*AuditPage, error) {
	limit := q.Limit
	if limit == 0 {
		limit = DefaultAuditLimit
	}
	if limit < 1 || limit > MaxAuditLimit {
		return nil, ErrInvalidLimit
	}
	f := auditdomain.Filter{
		From:       q.From,
		To:         q.To,
		AssistMode: q.AssistMode,
		Action:     q.Action,
		ModelName:  q.ModelName,
		Query:      q.Search,
		Limit:      limit + 1,
	}
	if q.TenantScope {
		f.ActorID = q.UserID
	} else {
		f.ActorID = tc.UserID
	}
	if q.Cursor != "" {
		c, err := ParseCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		f.After = c
	}
	var rows []*auditdomain.AuditLog
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		rows, err = s.audit.List(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	page := &AuditPage{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.NextCursor = FormatCursor(page.Items[limit-1])
	}
	return page, nil
}

// EntityEvents lists an entity's event trail, newest first, checking each payload
// against its recorded digest.
func (s *Service) EntityEvents(ctx context.Context, tc tenancy.Context, entityType, entityID string, limit int) ([]EventRecord, error) {
	if strings.TrimSpace(entityType) == "" || strings.TrimSpace(entityID) == "" {
		return nil, ErrEntityRequired
	}
	if limit < 0 || limit > MaxAuditLimit {
		return nil, ErrInvalidLimit
	}
	var evs []*eventsdomain.Event
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		evs, err = s.history.History(ctx, entityType, entityID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]EventRecord, 0, len(evs))
	for _, e := range evs {
		out = append(out, EventRecord{
			EventID:       e.EventID,
			Timestamp:     e.Timestamp,
			Actor:         e.Actor,
			EventType:     e.EventType,
			Source:        e.Source,
			SchemaVersion: e.SchemaVersion,
			DigestOK:      events.VerifyDigest(e),
		})
	}
	return out, nil
}

// FormatCursor renders the keyset position of a as "ts|id".
func FormatCursor(a *auditdomain.AuditLog) string {
	return a.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + a.ID
}

// ParseCursor parses a FormatCursor value.
func ParseCursor(s string) (*auditdomain.Cursor, error) {
	ts, id, ok := strings.Cut(s, "|")
	if !ok {
		return nil, ErrInvalidCursor
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidCursor
	}
	return &auditdomain.Cursor{Timestamp: t, ID: id}, nil
}
