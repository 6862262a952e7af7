package tableparser

import (
	"regexp"
	"strings"
)

// billIDRe matches identifiers such as "S. 383-116", "HR1234-117" or "H.R. 2307-117".
var billIDRe = regexp.MustCompile(`(?i)\b((?:H\.?\s?R|S)\.?\s?\d+-\d{2,3})\b`)

// completionKeywords mark agent output that closes an investigation.
var completionKeywords = []string{
	"terminate",
	"investigation complete",
	"table delivered",
	"final results",
	"analysis complete",
}

// ExtractBillID returns the first bill identifier in text, or "".
func ExtractBillID(text string) string {
	m := billIDRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// DetectCompletion reports whether text contains any completion keyword.
func DetectCompletion(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range completionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
