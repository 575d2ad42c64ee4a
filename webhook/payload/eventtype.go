package payload

import "strings"

// UnknownEventType is returned when no rule yields an event type
const UnknownEventType = "unknown"

// extractor looks for a provider specific event type; empty means "not found"
type extractor func(headers map[string]string, body Value) string

func fromHeader(name string) extractor {
	return func(headers map[string]string, _ Value) string {
		return headerValue(headers, name)
	}
}

func fromBody(field string) extractor {
	return func(_ map[string]string, body Value) string {
		return body.StringField(field)
	}
}

// extractors maps a lower-cased provider name to the ordered rules for that provider
var extractors = map[string][]extractor{
	"github":    {fromHeader("x-github-event")},
	"gitlab":    {fromBody("event_type"), fromBody("object_kind"), fromHeader("x-gitlab-event")},
	"bitbucket": {fromHeader("x-event-key")},
	"gitea":     {fromHeader("x-gitea-event")},
	"stripe":    {fromBody("type")},
}

var fallback = []extractor{fromBody("event_type"), fromBody("type")}

// ExtractEventType derives the canonical event type of a webhook call
// It never fails: unknown shapes yield "unknown"
func ExtractEventType(headers map[string]string, body Value, providerName string) string {
	for _, rules := range [][]extractor{extractors[strings.ToLower(strings.TrimSpace(providerName))], fallback} {
		for _, rule := range rules {
			if eventType := rule(headers, body); eventType != "" {
				return eventType
			}
		}
	}
	return UnknownEventType
}

// MatchesEventType reports whether a route event type selects the given event type
// An empty route type or "*" is a wildcard
func MatchesEventType(routeEventType, eventType string) bool {
	routeEventType = strings.TrimSpace(routeEventType)
	if routeEventType == "" || routeEventType == "*" {
		return true
	}
	return routeEventType == eventType
}

// Allowed reports whether the event type passes an endpoint allow-list (empty allows all)
func Allowed(allowList []string, eventType string) bool {
	if len(allowList) == 0 {
		return true
	}
	for _, allowed := range allowList {
		if strings.TrimSpace(allowed) == eventType {
			return true
		}
	}
	return false
}

// NormalizeHeaders lower-cases header names and trims values
func NormalizeHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		out[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return out
}

func headerValue(headers map[string]string, key string) string {
	if value, ok := headers[key]; ok {
		return strings.TrimSpace(value)
	}
	for existing, value := range headers {
		if strings.EqualFold(existing, key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
