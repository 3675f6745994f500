package ferry

import "time"

// Config holds the configuration for a Ferry instance.
type Config struct {
	// Concurrency is the number of delivery worker goroutines.
	Concurrency int

	// PollInterval is how often the delivery engine checks for queued tasks.
	PollInterval time.Duration

	// BatchSize is the maximum number of tasks dequeued per poll cycle.
	BatchSize int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// SweepInterval is how often the retry scheduler re-enqueues due tasks.
	SweepInterval time.Duration

	// AutoPauseWindow is the trailing attempt count watched per endpoint
	// before the auto-pause check fires.
	AutoPauseWindow int

	// AutoPauseThreshold is the minimum success rate over the window.
	// Endpoints falling below it are flipped to the failed status.
	AutoPauseThreshold float64

	// EventOrdering forces single-flight sequential delivery per endpoint.
	EventOrdering bool

	// StrictTypes rejects published events whose type is not registered in
	// the catalog. When false, unregistered types pass through unvalidated.
	StrictTypes bool

	// CacheTTL is the TTL for the catalog's in-memory event type cache.
	// Set to 0 to disable expiry.
	CacheTTL time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries
	// on shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:        8,
		PollInterval:       500 * time.Millisecond,
		BatchSize:          32,
		RequestTimeout:     30 * time.Second,
		SweepInterval:      time.Second,
		AutoPauseWindow:    20,
		AutoPauseThreshold: 0.5,
		CacheTTL:           30 * time.Second,
		ShutdownTimeout:    30 * time.Second,
	}
}
