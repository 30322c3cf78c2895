package domain

import "time"

// Assist mode keys. The registry is closed: a key outside this list is never resolved.
const (
	KeyChatWithAI     = "CHAT_WITH_AI"
	KeySessionSummary = "SESSION_SUMMARY"
	KeyStructuredDoc  = "STRUCTURED_DOC"
	KeyTherapyPlan    = "THERAPY_PLAN"
	KeyRiskAnalysis   = "RISK_ANALYSIS"
	KeyCaseReflection = "CASE_REFLECTION"
)

// AssistKeys lists the registry keys in display order.
var AssistKeys = []string{
	KeyChatWithAI,
	KeySessionSummary,
	KeyStructuredDoc,
	KeyTherapyPlan,
	KeyRiskAnalysis,
	KeyCaseReflection,
}

var displayNames = map[string]string{
	KeyChatWithAI:     "Chat with AI",
	KeySessionSummary: "Session Summary",
	KeyStructuredDoc:  "Structured Documentation",
	KeyTherapyPlan:    "Therapy Plan Draft",
	KeyRiskAnalysis:   "Risk Analysis",
	KeyCaseReflection: "Case Reflection",
}

// SafeModeSuffix is appended to the system prompt when a chat runs in safe mode.
const SafeModeSuffix = "\n\nSafe mode is enabled. Use cautious, non-judgmental language. " +
	"Do not speculate about diagnoses. Point out uncertainty explicitly and recommend " +
	"professional review for anything risk related."

// IsAssistKey reports whether key is a registry key.
func IsAssistKey(key string) bool {
	_, ok := displayNames[key]
	return ok
}

// DisplayName returns the human name for key, or key itself when unknown.
func DisplayName(key string) string {
	if n, ok := displayNames[key]; ok {
		return n
	}
	return key
}

// Prompt is the active version of one registry prompt.
type Prompt struct {
	ID          string
	Key         string
	DisplayName string
	TenantID    *string // nil for the global prompt
	Version     int
	Body        string
	CreatedAt   time.Time
}
