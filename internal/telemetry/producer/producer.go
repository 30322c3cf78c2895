// Package producer publishes telemetry events to a message broker.
package producer

import (
	"context"

	"praxis-pilot/backend/internal/telemetry/domain"
)

// Producer publishes telemetry events. Callers treat failures as best-effort.
type Producer interface {
	Emit(ctx context.Context, event *domain.Event) error
	Close() error
}

// Header names set on every published message.
const (
	HeaderEventType = "event_type"
	HeaderSource    = "source"
)
