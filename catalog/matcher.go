package catalog

import "strings"

// Match checks if an event type name matches a subscription pattern.
//
// Supported patterns:
//
//	"invoice.created"  → exact match
//	"invoice.*"        → matches any event type starting with "invoice."
//	"*"                → matches everything
//
// A trailing ".*" is a category prefix, not a single-segment wildcard:
// "order.*" matches both "order.completed" and "order.item.added".
func Match(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}

	if pattern == eventType {
		return true
	}

	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(eventType, prefix+".")
	}

	return false
}

// MatchAny reports whether the event type matches any of the given patterns.
func MatchAny(patterns []string, eventType string) bool {
	for _, p := range patterns {
		if Match(p, eventType) {
			return true
		}
	}
	return false
}
