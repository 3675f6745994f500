package catalog

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		// Wildcard "*" matches everything.
		{"*", "invoice.created", true},
		{"*", "user.deleted", true},
		{"*", "x", true},

		// Exact match.
		{"invoice.created", "invoice.created", true},
		{"user.deleted", "user.deleted", true},

		// Exact mismatch.
		{"invoice.created", "invoice.paid", false},
		{"invoice.created", "user.created", false},

		// Category prefix.
		{"invoice.*", "invoice.created", true},
		{"invoice.*", "invoice.paid", true},
		{"invoice.*", "user.created", false},
		{"order.*", "order.item.added", true},
		{"order.*", "orders.created", false},
		{"invoice.payment.*", "invoice.payment.completed", true},
		{"invoice.payment.*", "invoice.refund.completed", false},

		// Prefix must be followed by a dot, not merely share characters.
		{"invoice.*", "invoice", false},
		{"inv.*", "invoice.created", false},

		// Wildcards only apply as a trailing ".*" suffix.
		{"*.created", "invoice.created", false},
		{"invoice.*.completed", "invoice.payment.completed", false},

		// Edge cases.
		{"", "", true},
		{"a", "a", true},
		{"a", "b", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_vs_"+tt.eventType, func(t *testing.T) {
			got := Match(tt.pattern, tt.eventType)
			if got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.eventType, got, tt.want)
			}
		})
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"invoice.created", "order.*"}

	if !MatchAny(patterns, "invoice.created") {
		t.Error("expected exact pattern to match")
	}
	if !MatchAny(patterns, "order.completed") {
		t.Error("expected prefix pattern to match")
	}
	if MatchAny(patterns, "user.created") {
		t.Error("expected no match")
	}
	if MatchAny(nil, "user.created") {
		t.Error("empty pattern set should match nothing")
	}
}
