// Package memory provides an in-memory Store implementation for unit testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meridianlabs/ferry"
	"github.com/meridianlabs/ferry/catalog"
	"github.com/meridianlabs/ferry/delivery"
	"github.com/meridianlabs/ferry/endpoint"
	"github.com/meridianlabs/ferry/event"
	"github.com/meridianlabs/ferry/id"
	"github.com/meridianlabs/ferry/ledger"
	ferrystore "github.com/meridianlabs/ferry/store"
)

// compile-time interface check.
var _ ferrystore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store for testing.
type Store struct {
	mu sync.RWMutex

	eventTypes     map[string]*catalog.EventType // keyed by name
	eventTypesByID map[string]*catalog.EventType // keyed by ID string
	endpoints      map[string]*endpoint.Endpoint // keyed by ID string
	events         map[string]*event.Event       // keyed by ID string
	tasks          map[string]*delivery.Task     // keyed by ID string
	tasksByPair    map[string]*delivery.Task     // keyed by endpointID|eventID
	locked         map[string]bool               // simulates SKIP LOCKED
	attempts       []*ledger.AttemptRecord       // append-only

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		eventTypes:     make(map[string]*catalog.EventType),
		eventTypesByID: make(map[string]*catalog.EventType),
		endpoints:      make(map[string]*endpoint.Endpoint),
		events:         make(map[string]*event.Event),
		tasks:          make(map[string]*delivery.Task),
		tasksByPair:    make(map[string]*delivery.Task),
		locked:         make(map[string]bool),
	}
}

func pairKey(epID, evtID id.ID) string {
	return epID.String() + "|" + evtID.String()
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the in-memory store.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ferry.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// catalog.Store
// ──────────────────────────────────────────────────

// RegisterType creates or updates an event type definition (upsert by name).
func (s *Store) RegisterType(_ context.Context, et *catalog.EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.eventTypes[et.Definition.Name]; ok {
		in := copyEventType(et)
		existing.Definition = in.Definition
		existing.UpdatedAt = time.Now().UTC()
		existing.Metadata = in.Metadata
		et.ID = existing.ID
		return nil
	}

	cp := copyEventType(et)
	s.eventTypes[et.Definition.Name] = cp
	s.eventTypesByID[et.ID.String()] = cp
	return nil
}

// GetType returns an event type by name.
func (s *Store) GetType(_ context.Context, name string) (*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return nil, ferry.ErrEventTypeNotFound
	}
	return copyEventType(et), nil
}

// GetTypeByID returns an event type by its TypeID.
func (s *Store) GetTypeByID(_ context.Context, etID id.ID) (*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.eventTypesByID[etID.String()]
	if !ok {
		return nil, ferry.ErrEventTypeNotFound
	}
	return copyEventType(et), nil
}

// ListTypes returns all registered event types, optionally filtered.
func (s *Store) ListTypes(_ context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.EventType, 0, len(s.eventTypes))
	for _, et := range s.eventTypes {
		if !opts.IncludeDeprecated && et.IsDeprecated {
			continue
		}
		if opts.Group != "" && et.Definition.Group != opts.Group {
			continue
		}
		result = append(result, copyEventType(et))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Definition.Name < result[j].Definition.Name
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// DeleteType soft-deletes (deprecates) an event type.
func (s *Store) DeleteType(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return ferry.ErrEventTypeNotFound
	}

	now := time.Now().UTC()
	et.IsDeprecated = true
	et.DeprecatedAt = &now
	et.UpdatedAt = now
	return nil
}

// ──────────────────────────────────────────────────
// endpoint.Store
// ──────────────────────────────────────────────────

// CreateEndpoint persists a new endpoint.
func (s *Store) CreateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[ep.ID.String()] = copyEndpoint(ep)
	return nil
}

// GetEndpoint returns an endpoint by ID.
func (s *Store) GetEndpoint(_ context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return nil, ferry.ErrEndpointNotFound
	}
	return copyEndpoint(ep), nil
}

// UpdateEndpoint modifies an existing endpoint.
func (s *Store) UpdateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[ep.ID.String()]; !ok {
		return ferry.ErrEndpointNotFound
	}
	ep.UpdatedAt = time.Now().UTC()
	s.endpoints[ep.ID.String()] = copyEndpoint(ep)
	return nil
}

// DeleteEndpoint removes an endpoint.
func (s *Store) DeleteEndpoint(_ context.Context, epID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[epID.String()]; !ok {
		return ferry.ErrEndpointNotFound
	}
	delete(s.endpoints, epID.String())
	return nil
}

// ListEndpoints returns endpoints for an owner, optionally filtered.
func (s *Store) ListEndpoints(_ context.Context, ownerID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*endpoint.Endpoint
	for _, ep := range s.endpoints {
		if ownerID != "" && ep.OwnerID != ownerID {
			continue
		}
		if opts.Status != nil && ep.Status != *opts.Status {
			continue
		}
		result = append(result, copyEndpoint(ep))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// Resolve finds all active endpoints whose patterns match an event type.
func (s *Store) Resolve(_ context.Context, eventType string) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*endpoint.Endpoint
	for _, ep := range s.endpoints {
		if !ep.Active() {
			continue
		}
		if catalog.MatchAny(ep.EventPatterns, eventType) {
			result = append(result, copyEndpoint(ep))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

// SetStatus transitions an endpoint's lifecycle status.
func (s *Store) SetStatus(_ context.Context, epID id.ID, status endpoint.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return ferry.ErrEndpointNotFound
	}
	ep.Status = status
	ep.UpdatedAt = time.Now().UTC()
	return nil
}

// IncrementCounters atomically adds to the endpoint's rolling counters.
func (s *Store) IncrementCounters(_ context.Context, epID id.ID, total, successful, failed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return ferry.ErrEndpointNotFound
	}
	ep.TotalDeliveries += total
	ep.SuccessfulDeliveries += successful
	ep.FailedDeliveries += failed
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

// CreateEvent persists an event.
func (s *Store) CreateEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[evt.ID.String()]; ok {
		return ferry.ErrDuplicateEvent
	}
	s.events[evt.ID.String()] = evt
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[evtID.String()]
	if !ok {
		return nil, ferry.ErrEventNotFound
	}
	return evt, nil
}

// ListEvents returns events, optionally filtered by type or time range.
func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*event.Event
	for _, evt := range s.events {
		if opts.Type != "" && evt.Type != opts.Type {
			continue
		}
		if opts.From != nil && evt.OccurredAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && evt.OccurredAt.After(*opts.To) {
			continue
		}
		result = append(result, evt)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OccurredAt.After(result[j].OccurredAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// EnqueueTask creates a queued task.
func (s *Store) EnqueueTask(_ context.Context, t *delivery.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeTask(t)
	return nil
}

// EnqueueTasks creates multiple tasks atomically (fan-out).
func (s *Store) EnqueueTasks(_ context.Context, ts []*delivery.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range ts {
		s.storeTask(t)
	}
	return nil
}

// storeTask inserts a task. Caller must hold the write lock.
func (s *Store) storeTask(t *delivery.Task) {
	cp := copyTask(t)
	s.tasks[cp.ID.String()] = cp
	s.tasksByPair[pairKey(cp.EndpointID, cp.EventID)] = cp
}

// Dequeue claims queued tasks ready for attempt. Claimed tasks stay queued
// in the store but are excluded from later Dequeue calls until released or
// updated, mirroring FOR UPDATE SKIP LOCKED.
func (s *Store) Dequeue(_ context.Context, limit int) ([]*delivery.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []*delivery.Task
	for _, t := range s.tasks {
		if t.State != delivery.StateQueued || s.locked[t.ID.String()] {
			continue
		}
		ready = append(ready, t)
	}

	// Oldest first, so a starved task cannot sit behind fresh arrivals.
	sort.Slice(ready, func(i, j int) bool {
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})

	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}

	claimed := make([]*delivery.Task, 0, len(ready))
	for _, t := range ready {
		s.locked[t.ID.String()] = true
		claimed = append(claimed, copyTask(t))
	}
	return claimed, nil
}

// UpdateTask persists a task's state and releases the dequeue claim.
func (s *Store) UpdateTask(_ context.Context, t *delivery.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID.String()]; !ok {
		return ferry.ErrTaskNotFound
	}

	t.UpdatedAt = time.Now().UTC()
	cp := copyTask(t)
	s.tasks[cp.ID.String()] = cp
	s.tasksByPair[pairKey(cp.EndpointID, cp.EventID)] = cp
	delete(s.locked, cp.ID.String())
	return nil
}

// ReleaseTask returns a claimed task to the queue unchanged.
func (s *Store) ReleaseTask(_ context.Context, taskID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID.String()]; !ok {
		return ferry.ErrTaskNotFound
	}
	delete(s.locked, taskID.String())
	return nil
}

// RequeueTask moves a retrying task back to queued.
func (s *Store) RequeueTask(_ context.Context, taskID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID.String()]
	if !ok {
		return ferry.ErrTaskNotFound
	}
	if t.State != delivery.StateRetrying {
		return nil // already picked up or completed; requeue is idempotent
	}

	t.State = delivery.StateQueued
	t.UpdatedAt = time.Now().UTC()
	delete(s.locked, taskID.String())
	return nil
}

// GetTask returns a task by ID.
func (s *Store) GetTask(_ context.Context, taskID id.ID) (*delivery.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[taskID.String()]
	if !ok {
		return nil, ferry.ErrTaskNotFound
	}
	return copyTask(t), nil
}

// TaskForEvent returns the task for an (endpoint, event) pair.
func (s *Store) TaskForEvent(_ context.Context, epID, evtID id.ID) (*delivery.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasksByPair[pairKey(epID, evtID)]
	if !ok {
		return nil, ferry.ErrTaskNotFound
	}
	return copyTask(t), nil
}

// ListTasksByEndpoint returns delivery history for an endpoint, newest first.
func (s *Store) ListTasksByEndpoint(_ context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*delivery.Task
	for _, t := range s.tasks {
		if t.EndpointID.String() != epID.String() {
			continue
		}
		if opts.State != nil && t.State != *opts.State {
			continue
		}
		result = append(result, copyTask(t))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListTasksByEvent returns all tasks spawned by one event.
func (s *Store) ListTasksByEvent(_ context.Context, evtID id.ID) ([]*delivery.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*delivery.Task
	for _, t := range s.tasks {
		if t.EventID.String() == evtID.String() {
			result = append(result, copyTask(t))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

// ListRetryingTasks returns every task in the retrying state.
func (s *Store) ListRetryingTasks(_ context.Context) ([]*delivery.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*delivery.Task
	for _, t := range s.tasks {
		if t.State == delivery.StateRetrying {
			result = append(result, copyTask(t))
		}
	}
	return result, nil
}

// CountTasksByState returns the number of tasks in the given state.
func (s *Store) CountTasksByState(_ context.Context, state delivery.State) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, t := range s.tasks {
		if t.State == state {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// ledger.Store
// ──────────────────────────────────────────────────

// AppendAttempt durably writes one attempt record.
func (s *Store) AppendAttempt(_ context.Context, rec *ledger.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.attempts = append(s.attempts, &cp)
	return nil
}

// ListAttemptsByEndpoint returns records for an endpoint, newest first.
func (s *Store) ListAttemptsByEndpoint(_ context.Context, epID id.ID, opts ledger.ListOpts) ([]*ledger.AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ledger.AttemptRecord
	for _, rec := range s.attempts {
		if rec.EndpointID.String() == epID.String() {
			result = append(result, rec)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	result = applyPagination(result, opts.Offset, opts.Limit)
	return result, nil
}

// ListAttemptsByTask returns all records for one task, oldest first.
func (s *Store) ListAttemptsByTask(_ context.Context, taskID id.ID) ([]*ledger.AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ledger.AttemptRecord
	for _, rec := range s.attempts {
		if rec.TaskID.String() == taskID.String() {
			result = append(result, rec)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].AttemptNumber != result[j].AttemptNumber {
			return result[i].AttemptNumber < result[j].AttemptNumber
		}
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// PurgeAttemptsBefore removes records older than the cutoff.
func (s *Store) PurgeAttemptsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.attempts[:0]
	var removed int64
	for _, rec := range s.attempts {
		if rec.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.attempts = kept
	return removed, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// copyTask returns a shallow copy so workers can mutate a claimed task
// without racing readers of the stored one.
func copyTask(t *delivery.Task) *delivery.Task {
	cp := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// copyEndpoint returns a copy so callers can mutate a fetched endpoint (or
// abandon a half-applied update) without the store observing it, and so
// SetStatus/IncrementCounters never write a struct a reader holds.
func copyEndpoint(ep *endpoint.Endpoint) *endpoint.Endpoint {
	cp := *ep
	cp.EventPatterns = append([]string(nil), ep.EventPatterns...)
	if ep.Headers != nil {
		cp.Headers = make(map[string]string, len(ep.Headers))
		for k, v := range ep.Headers {
			cp.Headers[k] = v
		}
	}
	if ep.Metadata != nil {
		cp.Metadata = make(map[string]string, len(ep.Metadata))
		for k, v := range ep.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// copyEventType returns a copy; DeleteType mutates the stored struct, so
// readers must never share it.
func copyEventType(et *catalog.EventType) *catalog.EventType {
	cp := *et
	if et.DeprecatedAt != nil {
		at := *et.DeprecatedAt
		cp.DeprecatedAt = &at
	}
	if et.Metadata != nil {
		cp.Metadata = make(map[string]string, len(et.Metadata))
		for k, v := range et.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// applyPagination slices the result set by offset/limit.
func applyPagination[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
