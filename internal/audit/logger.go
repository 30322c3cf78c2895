package audit

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"praxis-pilot/backend/internal/audit/domain"
	auditrepo "praxis-pilot/backend/internal/audit/repository"
	"praxis-pilot/backend/internal/tenancy"
)

// maxMetadataString caps string metadata values so free text cannot slip into the log.
const maxMetadataString = 200

// ErrUnsafeMetadata is returned when metadata carries a value that could hold clinical content.
var ErrUnsafeMetadata = errors.New("audit: metadata may only hold counts, ids and flags")

// Entry is one audit row to write. TenantID and ActorID come from the scope.
type Entry struct {
	Action       string
	EntityType   string
	EntityID     string
	Metadata     map[string]any
	AssistMode   string
	ModelName    string
	ModelVersion string
	InputTokens  int
	OutputTokens int
}

// Recorder writes audit and usage rows inside the caller's scope.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	RecordUsage(ctx context.Context, u domain.Usage) error
}

// Logger implements Recorder using the audit repository. Writes join the caller's
// transaction, so they commit or roll back with the business change they describe.
type Logger struct {
	repo auditrepo.Repository
}

// NewLogger returns a Logger that persists to repo.
func NewLogger(repo auditrepo.Repository) *Logger {
	return &Logger{repo: repo}
}

// Record writes one audit log entry.
func (l *Logger) Record(ctx context.Context, e Entry) error {
	tc, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	meta, err := SafeMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("audit %s: %w", e.Action, err)
	}
	entityID := e.EntityID
	if entityID != "" {
		if _, err := uuid.Parse(entityID); err != nil {
			// audit_logs.entity_id is a uuid column; keep external references in metadata.
			if meta == nil {
				meta = map[string]any{}
			}
			meta["entity_ref"] = truncate(entityID, maxMetadataString)
			entityID = ""
		}
	}
	row := &domain.AuditLog{
		TenantID:     tc.TenantID,
		ActorID:      tc.UserID,
		Action:       e.Action,
		EntityType:   e.EntityType,
		EntityID:     entityID,
		Metadata:     meta,
		AssistMode:   e.AssistMode,
		ModelName:    e.ModelName,
		ModelVersion: e.ModelVersion,
		InputTokens:  e.InputTokens,
		OutputTokens: e.OutputTokens,
	}
	if err := l.repo.Create(ctx, row); err != nil {
		log.Printf("audit: failed to record %s: %v", e.Action, err)
		return fmt.Errorf("audit %s: %w", e.Action, err)
	}
	return nil
}

// RecordUsage writes the usage record and LLM audit row for one completion.
func (l *Logger) RecordUsage(ctx context.Context, u domain.Usage) error {
	tc, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	u.TenantID = tc.TenantID
	if u.UserID == "" {
		u.UserID = tc.UserID
	}
	if err := l.repo.CreateUsage(ctx, &u); err != nil {
		log.Printf("audit: failed to record usage for %s: %v", u.AssistMode, err)
		return fmt.Errorf("audit usage: %w", err)
	}
	return nil
}

// SafeMetadata validates metadata: numbers, booleans, short strings and lists of short
// strings are allowed. Anything else is rejected.
func SafeMetadata(in map[string]any) (map[string]any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil, bool, int, int32, int64, float64:
			out[k] = val
		case string:
			if len(val) > maxMetadataString {
				return nil, fmt.Errorf("%w: %s", ErrUnsafeMetadata, k)
			}
			out[k] = val
		case []string:
			for _, s := range val {
				if len(s) > maxMetadataString {
					return nil, fmt.Errorf("%w: %s", ErrUnsafeMetadata, k)
				}
			}
			out[k] = append([]string(nil), val...)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsafeMetadata, k)
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
