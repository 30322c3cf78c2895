// Package render turns model markdown into sanitized text and typed structured blocks.
package render

import (
	"regexp"
	"strings"
)

// Rejection reasons. Reasons are safe to log and to return to clients.
const (
	ReasonNotString  = "Input must be string"
	ReasonScript     = "Script tag detected"
	ReasonIframe     = "Iframe detected"
	ReasonJavascript = "javascript: URI detected"
	ReasonDataHTML   = "data: text/html URI detected"
)

var (
	scriptPattern   = regexp.MustCompile(`(?is)<\s*script\b`)
	iframePattern   = regexp.MustCompile(`(?is)<\s*iframe\b`)
	javascriptURI   = regexp.MustCompile(`(?i)javascript\s*:`)
	dataHTMLURI     = regexp.MustCompile(`(?i)data:\s*text/html`)
	styleAttr       = regexp.MustCompile(`(?i)\s+style\s*=\s*("[^"]*"|'[^']*')`)
	eventHandler    = regexp.MustCompile(`(?i)\s+on\w+\s*=\s*("[^"]*"|'[^']*')`)
	htmlTagPattern  = regexp.MustCompile(`<[^>]+>`)
	rejectionChecks = []struct {
		re     *regexp.Regexp
		reason string
	}{
		{scriptPattern, ReasonScript},
		{iframePattern, ReasonIframe},
		{javascriptURI, ReasonJavascript},
		{dataHTMLURI, ReasonDataHTML},
	}
)

// SanitizeResult is the outcome of Sanitize. When Failed is true Sanitized is empty.
type SanitizeResult struct {
	Sanitized string
	Failed    bool
	Reason    string
}

// Sanitize rejects markdown carrying executable content and strips inline styles, event
// handler attributes and any remaining raw markup, leaving markdown syntax intact. Removal
// repeats until the text is stable, since stripping can join its neighbours into a new
// attribute or tag. The rejection checks then run again on the cleaned text.
func Sanitize(raw string) SanitizeResult {
	if reason := firstRejection(raw); reason != "" {
		return SanitizeResult{Failed: true, Reason: reason}
	}
	text := raw
	for {
		next := stripMarkup(text)
		if next == text {
			break
		}
		text = next
	}
	if reason := firstRejection(text); reason != "" {
		return SanitizeResult{Failed: true, Reason: reason}
	}
	return SanitizeResult{Sanitized: text}
}

// SanitizeValue sanitizes untyped input such as a decoded JSON field; non-strings are rejected.
func SanitizeValue(v any) SanitizeResult {
	s, ok := v.(string)
	if !ok {
		return SanitizeResult{Failed: true, Reason: ReasonNotString}
	}
	return Sanitize(s)
}

func stripMarkup(s string) string {
	s = styleAttr.ReplaceAllString(s, "")
	s = eventHandler.ReplaceAllString(s, "")
	s = htmlTagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func firstRejection(s string) string {
	for _, c := range rejectionChecks {
		if c.re.MatchString(s) {
			return c.reason
		}
	}
	return ""
}
