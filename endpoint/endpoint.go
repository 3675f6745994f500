// Package endpoint defines the webhook endpoint registry: the delivery
// targets, their subscription patterns, retry and rate limit policies, and
// the lifecycle status machine.
package endpoint

import (
	"time"

	"github.com/meridianlabs/ferry/id"
	"github.com/meridianlabs/ferry/internal/entity"
	"github.com/meridianlabs/ferry/signature"
)

// Status is the lifecycle state of an endpoint.
type Status string

// Endpoint statuses.
const (
	// StatusActive endpoints receive new deliveries.
	StatusActive Status = "active"

	// StatusPaused endpoints are temporarily excluded from routing by an operator.
	StatusPaused Status = "paused"

	// StatusFailed endpoints were auto-paused by the engine after sustained
	// delivery failures. An operator must reactivate them.
	StatusFailed Status = "failed"

	// StatusDisabled endpoints are permanently switched off. In-flight sends
	// complete and are logged, but no further retries are scheduled.
	StatusDisabled Status = "disabled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusFailed, StatusDisabled:
		return true
	}
	return false
}

// AuthType selects how deliveries to an endpoint are authenticated.
type AuthType string

// Endpoint authentication schemes.
const (
	AuthNone   AuthType = "none"
	AuthAPIKey AuthType = "api_key"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthHMAC   AuthType = "hmac"
)

// Valid reports whether a is a known auth type.
func (a AuthType) Valid() bool {
	switch a {
	case AuthNone, AuthAPIKey, AuthBearer, AuthBasic, AuthHMAC:
		return true
	}
	return false
}

// Backoff is the retry delay growth strategy.
type Backoff string

// Backoff strategies.
const (
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// Valid reports whether b is a known backoff strategy.
func (b Backoff) Valid() bool {
	return b == BackoffLinear || b == BackoffExponential
}

// RetryPolicy controls automatic redelivery after failed attempts.
// MaxAttempts is the number of additional retries after the first send,
// so a task makes at most MaxAttempts+1 attempts in total.
type RetryPolicy struct {
	MaxAttempts    int     `json:"max_attempts"`
	Backoff        Backoff `json:"backoff"`
	InitialDelayMs int64   `json:"initial_delay_ms"`
	MaxDelayMs     int64   `json:"max_delay_ms"`
}

// DefaultRetryPolicy is applied when an endpoint is created without one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Backoff:        BackoffExponential,
		InitialDelayMs: 1000,
		MaxDelayMs:     30000,
	}
}

// Delay returns the backoff delay before the given attempt number is retried.
// Attempt numbers start at 1 (the first send).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var ms int64
	switch p.Backoff {
	case BackoffLinear:
		ms = p.InitialDelayMs * int64(attempt)
	default:
		ms = p.InitialDelayMs << (attempt - 1)
		if ms <= 0 { // shift overflow
			ms = p.MaxDelayMs
		}
	}

	if ms > p.MaxDelayMs {
		ms = p.MaxDelayMs
	}
	return time.Duration(ms) * time.Millisecond
}

// OverflowAction governs what happens to a task when the endpoint's rate
// limit bucket is exhausted.
type OverflowAction string

// Overflow actions.
const (
	// OverflowQueue leaves the task queued; it is re-offered to the limiter
	// on the next poll and no delivery attempt is consumed.
	OverflowQueue OverflowAction = "queue"

	// OverflowDrop discards the task with a distinct "dropped" ledger
	// outcome. Dropped tasks are never retried.
	OverflowDrop OverflowAction = "drop"

	// OverflowError treats the denial as an immediate retryable failure,
	// consuming a delivery attempt and following the backoff schedule.
	OverflowError OverflowAction = "error"
)

// Valid reports whether a is a known overflow action.
func (a OverflowAction) Valid() bool {
	switch a {
	case OverflowQueue, OverflowDrop, OverflowError:
		return true
	}
	return false
}

// RateLimit throttles delivery attempts per endpoint.
type RateLimit struct {
	Enabled           bool           `json:"enabled"`
	RequestsPerMinute int            `json:"requests_per_minute"`
	OverflowAction    OverflowAction `json:"overflow_action"`
}

// Endpoint represents a webhook delivery target.
type Endpoint struct {
	entity.Entity

	// ID is the unique TypeID for this endpoint.
	ID id.ID `json:"id"`

	// OwnerID identifies the owner of this endpoint.
	OwnerID string `json:"owner_id"`

	// Name is a short human-readable label.
	Name string `json:"name"`

	// URL is the webhook delivery URL. Must be an absolute http(s) URI.
	URL string `json:"url"`

	// Description is a human-readable description of this endpoint.
	Description string `json:"description"`

	// Status is the lifecycle state. Only active endpoints are routed to.
	Status Status `json:"status"`

	// EventPatterns are subscription patterns: exact names, "*", or
	// category prefixes like "order.*".
	EventPatterns []string `json:"event_patterns"`

	// AuthType selects the delivery authentication scheme.
	AuthType AuthType `json:"auth_type"`

	// Secret is the credential material for AuthType. For hmac it is the
	// signing secret; for api_key/bearer/basic it is sent as the credential.
	// Never serialized.
	Secret string `json:"-"`

	// SignatureAlgorithm selects the HMAC hash for hmac auth.
	SignatureAlgorithm signature.Algorithm `json:"signature_algorithm,omitempty"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// RetryPolicy controls automatic redelivery.
	RetryPolicy RetryPolicy `json:"retry_policy"`

	// RateLimit throttles delivery attempts to this endpoint.
	RateLimit RateLimit `json:"rate_limit"`

	// Rolling counters, updated only by the ledger writer.
	// successful + failed ≤ total: a delivery may still be in flight.
	TotalDeliveries      int64 `json:"total_deliveries"`
	SuccessfulDeliveries int64 `json:"successful_deliveries"`
	FailedDeliveries     int64 `json:"failed_deliveries"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Active reports whether the endpoint is routed to.
func (e *Endpoint) Active() bool {
	return e.Status == StatusActive
}

// SuccessRate returns the fraction of completed deliveries that succeeded,
// or 1 when nothing has completed yet.
func (e *Endpoint) SuccessRate() float64 {
	done := e.SuccessfulDeliveries + e.FailedDeliveries
	if done == 0 {
		return 1
	}
	return float64(e.SuccessfulDeliveries) / float64(done)
}
