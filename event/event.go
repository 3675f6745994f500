// Package event defines the immutable domain events submitted for delivery.
package event

import (
	"time"

	"github.com/meridianlabs/ferry/id"
	"github.com/meridianlabs/ferry/internal/entity"
)

// Event represents a domain event submitted for delivery.
// Events are immutable once published.
type Event struct {
	entity.Entity

	// ID is the unique TypeID for this event. Callers may supply their own
	// to make Publish idempotent under at-least-once upstream delivery.
	ID id.ID `json:"id"`

	// Type is the dot-separated event type name (e.g. "order.completed").
	Type string `json:"type"`

	// Data is the event payload. Validated against JSON Schema if the type
	// is registered in the catalog with one.
	Data any `json:"data"`

	// OccurredAt is assigned by the producer. It orders events within a
	// single endpoint's delivery stream, not globally.
	OccurredAt time.Time `json:"occurred_at"`
}

// ListOpts configures filtering and pagination for event listing.
type ListOpts struct {
	Offset int
	Limit  int
	Type   string
	From   *time.Time
	To     *time.Time
}
