package delivery

import (
	"testing"
	"time"

	"github.com/meridianlabs/ferry/endpoint"
)

func TestDecide(t *testing.T) {
	r := NewRetrier()

	tests := []struct {
		name       string
		statusCode int
		attempt    int
		maxRetries int
		want       Decision
	}{
		{"2xx succeeds", 200, 1, 3, Succeeded},
		{"204 succeeds", 204, 1, 3, Succeeded},
		{"500 retries with budget", 500, 1, 3, Retry},
		{"503 retries with budget", 503, 2, 3, Retry},
		{"500 fails without budget", 500, 4, 3, Fail},
		{"network error retries", 0, 1, 3, Retry},
		{"network error fails without budget", 0, 4, 3, Fail},
		{"429 retries with budget", 429, 1, 3, Retry},
		{"429 fails without budget", 429, 4, 3, Fail},
		{"404 fails immediately", 404, 1, 3, Fail},
		{"400 fails immediately", 400, 1, 3, Fail},
		{"zero retries single attempt", 500, 1, 0, Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{Attempt: tt.attempt, MaxAttempts: tt.maxRetries}
			got := r.Decide(Result{StatusCode: tt.statusCode}, task)
			if got != tt.want {
				t.Errorf("Decide(%d, attempt %d/%d) = %v, want %v",
					tt.statusCode, tt.attempt, tt.maxRetries, got, tt.want)
			}
		})
	}
}

func TestNextDelay_Linear(t *testing.T) {
	r := NewRetrier()
	policy := endpoint.RetryPolicy{
		Backoff:        endpoint.BackoffLinear,
		InitialDelayMs: 1000,
		MaxDelayMs:     10000,
	}

	for attempt, want := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 3 * time.Second,
	} {
		if got := r.NextDelay(policy, attempt, 0); got != want {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, want)
		}
	}
}

func TestNextDelay_Exponential(t *testing.T) {
	r := NewRetrier()
	policy := endpoint.RetryPolicy{
		Backoff:        endpoint.BackoffExponential,
		InitialDelayMs: 1000,
		MaxDelayMs:     30000,
	}

	for attempt, want := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 8 * time.Second,
		7: 30 * time.Second, // capped
	} {
		if got := r.NextDelay(policy, attempt, 0); got != want {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, want)
		}
	}
}

func TestNextDelay_RetryAfterHint(t *testing.T) {
	r := NewRetrier()
	policy := endpoint.RetryPolicy{
		Backoff:        endpoint.BackoffExponential,
		InitialDelayMs: 1000,
		MaxDelayMs:     30000,
	}

	// Hint above computed delay wins.
	if got := r.NextDelay(policy, 1, 5); got != 5*time.Second {
		t.Errorf("got %v, want 5s", got)
	}
	// Computed delay above hint wins.
	if got := r.NextDelay(policy, 4, 2); got != 8*time.Second {
		t.Errorf("got %v, want 8s", got)
	}
}

func TestDelay_ExponentialOverflowClamped(t *testing.T) {
	policy := endpoint.RetryPolicy{
		Backoff:        endpoint.BackoffExponential,
		InitialDelayMs: 1000,
		MaxDelayMs:     60000,
	}

	// A huge attempt number must not overflow into a negative delay.
	if got := policy.Delay(200); got != time.Minute {
		t.Errorf("got %v, want 60s cap", got)
	}
}
