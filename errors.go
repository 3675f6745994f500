package ferry

import "errors"

// Sentinel errors returned by Ferry operations.
var (
	// ErrNoStore is returned when a Ferry is created without a store.
	ErrNoStore = errors.New("ferry: store is required")

	// ErrEndpointNotFound is returned when an endpoint cannot be found.
	ErrEndpointNotFound = errors.New("ferry: endpoint not found")

	// ErrEventTypeNotFound is returned when an event type is not registered in the catalog.
	ErrEventTypeNotFound = errors.New("ferry: event type not found")

	// ErrEventTypeDeprecated is returned when publishing an event whose type has been deprecated.
	ErrEventTypeDeprecated = errors.New("ferry: event type is deprecated")

	// ErrPayloadValidationFailed is returned when event data fails JSON Schema validation.
	ErrPayloadValidationFailed = errors.New("ferry: payload validation failed")

	// ErrDuplicateEvent is returned when an event with the same ID was already published.
	ErrDuplicateEvent = errors.New("ferry: duplicate event")

	// ErrEndpointDisabled is returned when attempting to deliver to a disabled endpoint.
	ErrEndpointDisabled = errors.New("ferry: endpoint is disabled")

	// ErrTaskNotFound is returned when a delivery task cannot be found.
	ErrTaskNotFound = errors.New("ferry: delivery task not found")

	// ErrTaskNotRetryable is returned when a manual retry targets a task
	// that is not in a terminal failed state.
	ErrTaskNotRetryable = errors.New("ferry: task is not in a failed state")

	// ErrEventNotFound is returned when an event cannot be found.
	ErrEventNotFound = errors.New("ferry: event not found")

	// ErrAttemptNotFound is returned when an attempt record cannot be found.
	ErrAttemptNotFound = errors.New("ferry: attempt record not found")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("ferry: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("ferry: migration failed")
)
