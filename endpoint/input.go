package endpoint

import "github.com/meridianlabs/ferry/signature"

// Input is the creation/update payload for endpoints.
type Input struct {
	// OwnerID identifies the owner of this endpoint.
	OwnerID string `json:"owner_id"`

	// Name is a short human-readable label.
	Name string `json:"name"`

	// URL is the webhook delivery URL.
	URL string `json:"url"`

	// Description is a human-readable description.
	Description string `json:"description"`

	// AuthType selects the delivery authentication scheme. Defaults to hmac.
	AuthType AuthType `json:"auth_type"`

	// Secret is the credential material. Auto-generated for hmac if empty on create.
	Secret string `json:"secret"`

	// SignatureAlgorithm selects the HMAC hash. Defaults to sha256.
	SignatureAlgorithm signature.Algorithm `json:"signature_algorithm"`

	// EventPatterns are subscription patterns for event routing.
	EventPatterns []string `json:"event_patterns"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// RetryPolicy controls automatic redelivery. Defaults applied if nil.
	RetryPolicy *RetryPolicy `json:"retry_policy,omitempty"`

	// RateLimit throttles delivery attempts. Disabled if nil.
	RateLimit *RateLimit `json:"rate_limit,omitempty"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ListOpts configures filtering and pagination for endpoint listing.
type ListOpts struct {
	Offset int
	Limit  int
	Status *Status
}
