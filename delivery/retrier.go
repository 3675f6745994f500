package delivery

import (
	"time"

	"github.com/meridianlabs/ferry/endpoint"
)

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Succeeded means the destination accepted the delivery (2xx).
	Succeeded Decision = iota

	// Retry means the failure is transient and a retry is scheduled.
	Retry

	// Fail means the task permanently failed: either the failure class is
	// terminal or the attempt budget is exhausted.
	Fail
)

// Result holds the outcome of a single delivery attempt.
type Result struct {
	StatusCode int
	Error      string
	Response   string
	LatencyMs  int

	// RetryAfter is the parsed Retry-After response header in seconds,
	// 0 when absent.
	RetryAfter int

	// RequestHeaders are the headers that were sent, credentials redacted.
	RequestHeaders map[string]string

	// BodyHash is the SHA-256 hex digest of the request body.
	BodyHash string
}

// Retrier classifies delivery attempts and computes backoff delays.
type Retrier struct{}

// NewRetrier creates a retrier.
func NewRetrier() *Retrier {
	return &Retrier{}
}

// Decide determines what to do with a task after an attempt.
//
// Decision matrix:
//   - 2xx → Succeeded
//   - 429 → Retry if attempts remain, else Fail (transient rate limiting)
//   - 400–499 (except 429) → Fail immediately (client error won't self-correct)
//   - 500–599 → Retry if attempts remain, else Fail
//   - 0 (connection/timeout error) → Retry if attempts remain, else Fail
func (r *Retrier) Decide(res Result, t *Task) Decision {
	code := res.StatusCode

	if code >= 200 && code < 300 {
		return Succeeded
	}

	if code == 429 {
		return r.retryOrFail(t)
	}

	if code >= 400 && code < 500 {
		return Fail
	}

	return r.retryOrFail(t)
}

// retryOrFail returns Retry while the task has attempts remaining.
// The first send is attempt 1, so the budget is MaxAttempts+1 total.
func (r *Retrier) retryOrFail(t *Task) Decision {
	if t.Attempt < t.MaxAttempts+1 {
		return Retry
	}
	return Fail
}

// NextDelay returns the backoff delay after the given attempt failed,
// honoring a Retry-After hint when it exceeds the computed delay.
// The result is deterministic given the policy, attempt, and hint.
func (r *Retrier) NextDelay(policy endpoint.RetryPolicy, attempt int, retryAfterSec int) time.Duration {
	delay := policy.Delay(attempt)
	if hinted := time.Duration(retryAfterSec) * time.Second; hinted > delay {
		delay = hinted
	}
	return delay
}
