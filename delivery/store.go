package delivery

import (
	"context"

	"github.com/meridianlabs/ferry/id"
)

// Store defines the persistence contract for delivery tasks.
type Store interface {
	// EnqueueTask creates a queued task.
	EnqueueTask(ctx context.Context, t *Task) error

	// EnqueueTasks creates multiple tasks atomically (fan-out).
	EnqueueTasks(ctx context.Context, ts []*Task) error

	// Dequeue claims queued tasks ready for attempt (concurrent-safe).
	// Implementations must ensure no double-delivery (e.g. SKIP LOCKED).
	Dequeue(ctx context.Context, limit int) ([]*Task, error)

	// UpdateTask persists a task's state and releases the dequeue claim.
	UpdateTask(ctx context.Context, t *Task) error

	// ReleaseTask returns a claimed task to the queue unchanged, so a later
	// poll re-offers it. Used when the rate limiter defers a task.
	ReleaseTask(ctx context.Context, taskID id.ID) error

	// RequeueTask moves a retrying task back to queued once its next
	// attempt time is due.
	RequeueTask(ctx context.Context, taskID id.ID) error

	// GetTask returns a task by ID.
	GetTask(ctx context.Context, taskID id.ID) (*Task, error)

	// TaskForEvent returns the task for an (endpoint, event) pair, used for
	// router deduplication. Returns ferry.ErrTaskNotFound if none exists.
	TaskForEvent(ctx context.Context, epID, evtID id.ID) (*Task, error)

	// ListTasksByEndpoint returns delivery history for an endpoint.
	ListTasksByEndpoint(ctx context.Context, epID id.ID, opts ListOpts) ([]*Task, error)

	// ListTasksByEvent returns all tasks spawned by one event.
	ListTasksByEvent(ctx context.Context, evtID id.ID) ([]*Task, error)

	// ListRetryingTasks returns every task in the retrying state, used to
	// rebuild the retry schedule after a restart.
	ListRetryingTasks(ctx context.Context) ([]*Task, error)

	// CountTasksByState returns the number of tasks in the given state.
	CountTasksByState(ctx context.Context, state State) (int64, error)
}
