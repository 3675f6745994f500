// Package delivery implements the delivery worker pool: the task state
// machine, the HTTP sender, outcome classification, and the endpoint health
// tracker behind auto-pause.
package delivery

import (
	"time"

	"github.com/meridianlabs/ferry/id"
	"github.com/meridianlabs/ferry/internal/entity"
)

// State represents the current state of a delivery task.
type State string

const (
	// StateQueued means the task awaits a worker.
	StateQueued State = "queued"

	// StateSending means a worker is performing the HTTP call.
	StateSending State = "sending"

	// StateSucceeded means the destination accepted the delivery. Terminal.
	StateSucceeded State = "succeeded"

	// StateRetrying means the last attempt failed and the task waits for
	// its next attempt time.
	StateRetrying State = "retrying"

	// StateFailed means the task permanently failed. Terminal.
	StateFailed State = "failed"
)

// Terminal reports whether the state ends the task's lifecycle.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Task is the unit of work representing one endpoint's attempt(s) to
// deliver one event. Exactly one task exists per (endpoint, event) pair.
type Task struct {
	entity.Entity

	// ID is the unique TypeID for this task.
	ID id.ID `json:"id"`

	// EventID references the event being delivered.
	EventID id.ID `json:"event_id"`

	// EndpointID references the target endpoint.
	EndpointID id.ID `json:"endpoint_id"`

	// State is the current position in the task state machine.
	State State `json:"state"`

	// Attempt counts attempts made so far. 0 until the first send; the
	// first send is attempt 1. Never exceeds MaxAttempts+1.
	Attempt int `json:"attempt"`

	// MaxAttempts is the number of additional retries after the first send,
	// captured from the endpoint's retry policy at routing time.
	MaxAttempts int `json:"max_attempts"`

	// NextAttemptAt is when the next attempt is due. Meaningful only while
	// State is retrying.
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// RetryOf references the failed task this one was manually cloned from.
	RetryOf id.ID `json:"retry_of,omitempty"`

	// LastError is the error message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// LastStatusCode is the HTTP status code from the most recent attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListOpts configures filtering and pagination for task listing.
type ListOpts struct {
	Offset int
	Limit  int
	State  *State
}
