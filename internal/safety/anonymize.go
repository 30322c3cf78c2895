// Package safety holds best-effort PII masking and prompt-injection screening applied
// before user text reaches a model.
package safety

import "regexp"

type mask struct {
	re          *regexp.Regexp
	replacement string
}

// Applied in order; more specific patterns come first.
var masks = []mask{
	{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},
	{regexp.MustCompile(`\+49[- ]?[0-9]{2,4}[- ]?[0-9]{4,10}`), "[PHONE]"},
	{regexp.MustCompile(`0[0-9]{2,4}[- ]?[0-9]{4,10}`), "[PHONE]"},
	{regexp.MustCompile(`\b\d{1,2}\.\d{1,2}\.\d{4}\b`), "[DATE_OF_BIRTH]"},
	{regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`), "[DATE_OF_BIRTH]"},
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), "[DATE_OF_BIRTH]"},
	{regexp.MustCompile(`\b\d{10,}\b`), "[ID_NUMBER]"},
	{regexp.MustCompile(`\b(?:Herr|Frau)\s+[A-ZÄÖÜa-zäöüß]+`), "[PERSON]"},
	{regexp.MustCompile(`\bDr\.\s*[A-ZÄÖÜa-zäöüß]+`), "[PERSON]"},
}

// Anonymize masks emails, phone numbers, dates, long identifiers and titled names. The
// masking is deterministic and not a de-identification guarantee. Stored messages keep
// the original text; only model input is masked.
func Anonymize(text string) string {
	for _, m := range masks {
		text = m.re.ReplaceAllString(text, m.replacement)
	}
	return text
}
