package endpoint

import (
	"context"

	"github.com/meridianlabs/ferry/id"
)

// Store defines the persistence contract for webhook endpoints.
type Store interface {
	// CreateEndpoint persists a new endpoint.
	CreateEndpoint(ctx context.Context, ep *Endpoint) error

	// GetEndpoint returns an endpoint by ID.
	GetEndpoint(ctx context.Context, epID id.ID) (*Endpoint, error)

	// UpdateEndpoint modifies an existing endpoint.
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error

	// DeleteEndpoint removes an endpoint.
	DeleteEndpoint(ctx context.Context, epID id.ID) error

	// ListEndpoints returns endpoints for an owner, optionally filtered.
	// An empty ownerID returns endpoints for all owners.
	ListEndpoints(ctx context.Context, ownerID string, opts ListOpts) ([]*Endpoint, error)

	// Resolve finds all active endpoints whose patterns match an event type.
	// This is the hot path — called on every ferry.Publish().
	Resolve(ctx context.Context, eventType string) ([]*Endpoint, error)

	// SetStatus transitions an endpoint's lifecycle status.
	SetStatus(ctx context.Context, epID id.ID, status Status) error

	// IncrementCounters atomically adds to the endpoint's rolling delivery
	// counters. Implementations must not lose updates under concurrency.
	IncrementCounters(ctx context.Context, epID id.ID, total, successful, failed int64) error
}
