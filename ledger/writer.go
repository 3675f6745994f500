package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianlabs/ferry/endpoint"
	"github.com/meridianlabs/ferry/id"
)

// Writer appends attempt records and keeps the endpoint rolling counters in
// step with them. It is the only component that touches the counters, so the
// projection lags the ledger by at most one write.
type Writer struct {
	store     Store
	endpoints endpoint.Store
	logger    *slog.Logger
}

// NewWriter creates a ledger writer.
func NewWriter(store Store, endpoints endpoint.Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		store:     store,
		endpoints: endpoints,
		logger:    logger.With("component", "ledger"),
	}
}

// Record appends one attempt record and applies the counter deltas it
// implies. The append must succeed before any counter moves; callers must
// not advance task state unless Record returned nil.
func (w *Writer) Record(ctx context.Context, rec *AttemptRecord) error {
	if rec.ID.IsNil() {
		rec.ID = id.NewAttemptID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	if err := w.store.AppendAttempt(ctx, rec); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}

	total, successful, failed := counterDeltas(rec)
	if total == 0 && successful == 0 && failed == 0 {
		return nil
	}

	if err := w.endpoints.IncrementCounters(ctx, rec.EndpointID, total, successful, failed); err != nil {
		// The record is already durable; counters are a best-effort
		// projection and stay monotonic, so log and move on.
		w.logger.ErrorContext(ctx, "counter update failed",
			"endpoint_id", rec.EndpointID.String(), "error", err)
	}

	return nil
}

// counterDeltas maps an attempt record to endpoint counter increments.
// A task joins totalDeliveries on its first attempt (or when dropped before
// any attempt); successful/failed move only on terminal outcomes, so
// successful+failed never exceeds total.
func counterDeltas(rec *AttemptRecord) (total, successful, failed int64) {
	switch rec.Outcome {
	case OutcomeDelivered:
		successful = 1
	case OutcomeFailed:
		failed = 1
	case OutcomeDropped:
		failed = 1
		if rec.AttemptNumber == 0 {
			total = 1
		}
		return total, successful, failed
	case OutcomeRetrying:
	}

	if rec.AttemptNumber == 1 {
		total = 1
	}
	return total, successful, failed
}

// ListByEndpoint returns attempt records for an endpoint, newest first.
func (w *Writer) ListByEndpoint(ctx context.Context, epID id.ID, opts ListOpts) ([]*AttemptRecord, error) {
	return w.store.ListAttemptsByEndpoint(ctx, epID, opts)
}

// ListByTask returns all attempt records for a task, oldest first.
func (w *Writer) ListByTask(ctx context.Context, taskID id.ID) ([]*AttemptRecord, error) {
	return w.store.ListAttemptsByTask(ctx, taskID)
}

// Purge removes records older than the cutoff. It is never called from the
// write path; retention is an explicit operator action.
func (w *Writer) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := w.store.PurgeAttemptsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge attempts: %w", err)
	}
	w.logger.InfoContext(ctx, "ledger retention sweep", "cutoff", cutoff, "purged", n)
	return n, nil
}
