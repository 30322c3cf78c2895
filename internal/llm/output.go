package llm

import "strings"

// StripCodeFence returns the body of the first ``` or ```json fence in raw, or raw
// trimmed when it has none.
func StripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "```")
	if start < 0 {
		return raw
	}
	raw = raw[start:]
	if strings.HasPrefix(raw, "```json") {
		raw = raw[len("```json"):]
	} else {
		raw = raw[len("```"):]
	}
	if end := strings.Index(raw, "```"); end >= 0 {
		raw = raw[:end]
	}
	return strings.TrimSpace(raw)
}
