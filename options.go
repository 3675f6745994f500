package ferry

import (
	"log/slog"
	"time"

	"github.com/meridianlabs/ferry/store"
)

// Option configures a Ferry instance.
type Option func(*Ferry) error

// WithStore sets the persistence backend for the Ferry instance.
func WithStore(s store.Store) Option {
	return func(f *Ferry) error {
		f.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Ferry instance.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Ferry) error {
		f.logger = logger
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(f *Ferry) error {
		f.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the delivery engine checks for queued tasks.
func WithPollInterval(d time.Duration) Option {
	return func(f *Ferry) error {
		f.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of tasks dequeued per poll cycle.
func WithBatchSize(n int) Option {
	return func(f *Ferry) error {
		f.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(f *Ferry) error {
		f.config.RequestTimeout = d
		return nil
	}
}

// WithSweepInterval sets how often the retry scheduler re-enqueues due tasks.
func WithSweepInterval(d time.Duration) Option {
	return func(f *Ferry) error {
		f.config.SweepInterval = d
		return nil
	}
}

// WithAutoPause tunes the endpoint health check: window is the trailing
// attempt count watched per endpoint, threshold the minimum success rate.
func WithAutoPause(window int, threshold float64) Option {
	return func(f *Ferry) error {
		f.config.AutoPauseWindow = window
		f.config.AutoPauseThreshold = threshold
		return nil
	}
}

// WithEventOrdering forces single-flight sequential delivery per endpoint,
// trading throughput for cross-event ordering.
func WithEventOrdering() Option {
	return func(f *Ferry) error {
		f.config.EventOrdering = true
		return nil
	}
}

// WithStrictTypes rejects published events whose type is not registered.
func WithStrictTypes() Option {
	return func(f *Ferry) error {
		f.config.StrictTypes = true
		return nil
	}
}

// WithCacheTTL sets the TTL for the catalog's in-memory event type cache.
func WithCacheTTL(d time.Duration) Option {
	return func(f *Ferry) error {
		f.config.CacheTTL = d
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight deliveries
// on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(f *Ferry) error {
		f.config.ShutdownTimeout = d
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics() Option {
	return func(f *Ferry) error {
		f.metricsEnabled = true
		return nil
	}
}

// WithTracing enables OpenTelemetry spans around delivery attempts.
func WithTracing() Option {
	return func(f *Ferry) error {
		f.tracingEnabled = true
		return nil
	}
}
