package ledger

import (
	"context"
	"time"

	"github.com/meridianlabs/ferry/id"
)

// Store defines the persistence contract for the attempt ledger.
// AppendAttempt is the only write; implementations must be safe under
// concurrent appends from many workers.
type Store interface {
	// AppendAttempt durably writes one attempt record.
	AppendAttempt(ctx context.Context, rec *AttemptRecord) error

	// ListAttemptsByEndpoint returns records for an endpoint, newest first.
	ListAttemptsByEndpoint(ctx context.Context, epID id.ID, opts ListOpts) ([]*AttemptRecord, error)

	// ListAttemptsByTask returns all records for one task, oldest first.
	ListAttemptsByTask(ctx context.Context, taskID id.ID) ([]*AttemptRecord, error)

	// PurgeAttemptsBefore removes records older than the cutoff and returns
	// how many were removed. Only the explicit retention sweep calls this.
	PurgeAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
