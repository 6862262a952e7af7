// Package privacy scrubs user-private content and credentials from backend
// frames before they are logged or persisted.
package privacy

import "regexp"

// Placeholder replaces every redacted value.
const Placeholder = "[REDACTED]"

var (
	// privateTagRegex matches <private>...</private> in raw text and in
	// JSON strings where the angle brackets are escaped.
	privateTagRegex = regexp.MustCompile(`(?s)(?:<|\\u003c)private(?:>|\\u003e).*?(?:<|\\u003c)/private(?:>|\\u003e)`)

	bearerRegex    = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`)
	apiKeyRegex    = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{16,}`)
	secretKeyRegex = regexp.MustCompile(`(?i)("(?:api[_-]?key|access[_-]?token|token|password|secret)"\s*:\s*")[^"]*(")`)
)

// StripPrivateTags removes all <private>...</private> content from text.
func StripPrivateTags(text string) string {
	return privateTagRegex.ReplaceAllString(text, "")
}

// MaskSecrets replaces bearer tokens, API keys and credential-named JSON
// fields with Placeholder.
func MaskSecrets(text string) string {
	text = bearerRegex.ReplaceAllString(text, "Bearer "+Placeholder)
	text = apiKeyRegex.ReplaceAllString(text, Placeholder)
	return secretKeyRegex.ReplaceAllString(text, "${1}"+Placeholder+"${2}")
}

// Clean strips private sections and masks secrets.
func Clean(text string) string {
	return MaskSecrets(StripPrivateTags(text))
}

// Redact is Clean for raw frames. The input is returned unchanged when
// nothing matched.
func Redact(raw []byte) []byte {
	s := string(raw)
	cleaned := Clean(s)
	if cleaned == s {
		return raw
	}
	return []byte(cleaned)
}
