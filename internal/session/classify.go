package session

import "strings"

// ErrorClass is the category of a backend-reported investigation error.
type ErrorClass string

const (
	ErrorRateLimit      ErrorClass = "rate_limit"
	ErrorNetwork        ErrorClass = "network"
	ErrorAuthentication ErrorClass = "authentication"
	ErrorValidation     ErrorClass = "validation"
	ErrorServer         ErrorClass = "server"
	ErrorUnknown        ErrorClass = "unknown"
)

// classRules are checked in order; the first class with a matching marker wins.
var classRules = []struct {
	class   ErrorClass
	markers []string
}{
	{ErrorRateLimit, []string{"429", "too many requests", "rate limit", "rate_limit", "ratelimit"}},
	{ErrorAuthentication, []string{"401", "403", "unauthorized", "forbidden", "api key", "authentication", "invalid token"}},
	{ErrorNetwork, []string{"timeout", "timed out", "connection", "network", "unreachable", "econnrefused", "dns"}},
	{ErrorValidation, []string{"400", "invalid", "validation", "missing required", "bad request"}},
	{ErrorServer, []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable"}},
}

// Classify sorts error text into an ErrorClass by keyword.
func Classify(text string) ErrorClass {
	lower := strings.ToLower(text)
	for _, rule := range classRules {
		for _, m := range rule.markers {
			if strings.Contains(lower, m) {
				return rule.class
			}
		}
	}
	return ErrorUnknown
}

// Explain returns the user-facing explanation for an error class.
func Explain(class ErrorClass) string {
	switch class {
	case ErrorRateLimit:
		return "The AI service is rate limiting requests. Wait a minute and start the investigation again."
	case ErrorNetwork:
		return "The investigation lost contact with an upstream service. Check connectivity and retry."
	case ErrorAuthentication:
		return "The backend could not authenticate with an upstream service. Check the API credentials."
	case ErrorValidation:
		return "The investigation request was rejected as invalid. Check the company and bill values."
	case ErrorServer:
		return "An upstream service failed while investigating. Retry shortly."
	default:
		return "The investigation failed unexpectedly."
	}
}
