package policy

import "regexp"

var (
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{8,}`)
	apiKeyPattern = regexp.MustCompile(`(?i)(api[-_]?key["':=\s]+)[A-Za-z0-9._\-]{8,}`)
	secretPattern = regexp.MustCompile(`\b(?:ek|sk|key)[-_][A-Za-z0-9._\-]{12,}\b`)
)

// RedactSecrets masks credential material before it reaches any log sink.
// Ephemeral keys are short-lived but still grant a live session while valid.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := input

	next := bearerPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	changed = changed || next != out
	out = next

	next = apiKeyPattern.ReplaceAllString(out, "${1}[REDACTED]")
	changed = changed || next != out
	out = next

	next = secretPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	return out, changed
}
