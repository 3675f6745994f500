// Package store defines the composite Store interface for all Ferry
// persistence.
//
// Each subsystem defines its own store interface next to its models; the
// aggregate Store composes them all, so backends implement one type and the
// facade wires it everywhere.
package store

import (
	"context"

	"github.com/meridianlabs/ferry/catalog"
	"github.com/meridianlabs/ferry/delivery"
	"github.com/meridianlabs/ferry/endpoint"
	"github.com/meridianlabs/ferry/event"
	"github.com/meridianlabs/ferry/ledger"
)

// Store is the aggregate persistence interface.
type Store interface {
	catalog.Store
	endpoint.Store
	event.Store
	delivery.Store
	ledger.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
