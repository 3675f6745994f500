// Package ledger is the append-only record of every delivery attempt.
// Records are immutable once written; nothing removes them except the
// explicitly triggered retention sweep.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/meridianlabs/ferry/id"
)

// Outcome classifies what a delivery attempt resulted in.
type Outcome string

// Attempt outcomes.
const (
	// OutcomeDelivered means the destination accepted the delivery (2xx).
	OutcomeDelivered Outcome = "delivered"

	// OutcomeRetrying means the attempt failed but a retry is scheduled.
	OutcomeRetrying Outcome = "retrying"

	// OutcomeFailed means the attempt failed terminally.
	OutcomeFailed Outcome = "failed"

	// OutcomeDropped means the task was discarded by the rate limiter's
	// drop overflow action. No HTTP call was made.
	OutcomeDropped Outcome = "dropped"
)

// Terminal reports whether the outcome ends the task's attempt sequence.
func (o Outcome) Terminal() bool {
	return o == OutcomeDelivered || o == OutcomeFailed || o == OutcomeDropped
}

// AttemptRecord is one ledger entry, written for every delivery attempt.
// The request body is stored as a hash to bound storage; the full envelope
// can be reconstructed from the event.
type AttemptRecord struct {
	// ID is the unique TypeID for this record.
	ID id.ID `json:"id"`

	// TaskID references the delivery task this attempt belongs to.
	TaskID id.ID `json:"task_id"`

	// EndpointID references the target endpoint.
	EndpointID id.ID `json:"endpoint_id"`

	// EventID references the delivered event.
	EventID id.ID `json:"event_id"`

	// AttemptNumber is the attempt counter within the task, starting at 1.
	// Dropped records carry the count of attempts actually made (0 if none).
	AttemptNumber int `json:"attempt_number"`

	// RequestHeaders are the headers sent, with credentials redacted.
	RequestHeaders map[string]string `json:"request_headers,omitempty"`

	// RequestBodyHash is the SHA-256 hex digest of the request body.
	RequestBodyHash string `json:"request_body_hash,omitempty"`

	// StatusCode is the HTTP response status, 0 for network-level failures.
	StatusCode int `json:"status_code,omitempty"`

	// ResponseTimeMs is the attempt latency in milliseconds.
	ResponseTimeMs int `json:"response_time_ms,omitempty"`

	// ResponseBody is the response body, capped at 1KB.
	ResponseBody string `json:"response_body,omitempty"`

	// Error is the failure description, empty on success.
	Error string `json:"error,omitempty"`

	// Outcome classifies the attempt.
	Outcome Outcome `json:"outcome"`

	// Timestamp is when the attempt completed.
	Timestamp time.Time `json:"timestamp"`
}

// HashBody returns the SHA-256 hex digest stored in RequestBodyHash.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// ListOpts configures pagination for ledger queries.
type ListOpts struct {
	Offset int
	Limit  int
}
