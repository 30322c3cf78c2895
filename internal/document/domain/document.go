package domain

import (
	"fmt"
	"strings"
	"time"
)

// Fields are the keys of a structured session document, in display order.
var Fields = []string{
	"session_context",
	"presenting_symptoms",
	"resources",
	"interventions",
	"homework",
	"risk_assessment",
	"progress_evaluation",
}

// Content maps each of Fields to its text.
type Content map[string]string

// Document is the current structured documentation of one conversation. The row is
// updated in place; Version counts the writes.
type Document struct {
	ID             string
	TenantID       string
	ConversationID string
	Version        int
	Content        Content
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Empty returns content with every field set to "".
func Empty() Content {
	out := make(Content, len(Fields))
	for _, f := range Fields {
		out[f] = ""
	}
	return out
}

// Normalize keeps exactly Fields. Values are stringified and trimmed, missing or null
// values become "" and unknown keys are dropped. Normalize(Normalize(x)) == Normalize(x).
func Normalize(in map[string]any) Content {
	out := Empty()
	for _, f := range Fields {
		v, ok := in[f]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			out[f] = strings.TrimSpace(t)
		default:
			out[f] = strings.TrimSpace(fmt.Sprint(t))
		}
	}
	return out
}
