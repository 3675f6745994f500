package ferry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianlabs/ferry/catalog"
	"github.com/meridianlabs/ferry/delivery"
	"github.com/meridianlabs/ferry/endpoint"
	"github.com/meridianlabs/ferry/event"
	"github.com/meridianlabs/ferry/id"
	"github.com/meridianlabs/ferry/internal/entity"
	"github.com/meridianlabs/ferry/ledger"
	"github.com/meridianlabs/ferry/observability"
	"github.com/meridianlabs/ferry/scheduler"
	"github.com/meridianlabs/ferry/store"
)

// Ferry is the root webhook delivery engine.
type Ferry struct {
	config      Config
	store       store.Store
	catalog     *catalog.Catalog
	validator   *catalog.Validator
	endpointSvc *endpoint.Service
	recorder    *ledger.Writer
	engine      *delivery.Engine
	scheduler   *scheduler.Scheduler
	sender      *delivery.Sender
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	logger      *slog.Logger

	metricsEnabled bool
	tracingEnabled bool
}

// New creates a new Ferry with the given options.
func New(opts ...Option) (*Ferry, error) {
	f := &Ferry{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	if f.store == nil {
		return nil, ErrNoStore
	}
	f.wireServices()
	return f, nil
}

// wireServices initializes the internal services after options have been applied.
func (f *Ferry) wireServices() {
	if f.metricsEnabled {
		f.metrics = observability.NewMetrics()
	}
	if f.tracingEnabled {
		f.tracer = observability.NewTracer()
	}

	f.catalog = catalog.NewCatalog(f.store, catalog.Config{
		CacheTTL: f.config.CacheTTL,
	}, f.logger)

	f.validator = catalog.NewValidator()

	f.endpointSvc = endpoint.NewService(f.store, f.logger)

	f.recorder = ledger.NewWriter(f.store, f.store, f.logger)

	f.scheduler = scheduler.New(f.store, scheduler.Config{
		SweepInterval: f.config.SweepInterval,
	}, f.logger)

	f.sender = delivery.NewSender(delivery.SenderConfig{
		Timeout: f.config.RequestTimeout,
	})

	f.engine = delivery.NewEngine(f.store, f.recorder, f.scheduler, delivery.EngineConfig{
		Concurrency:        f.config.Concurrency,
		PollInterval:       f.config.PollInterval,
		BatchSize:          f.config.BatchSize,
		Sender:             delivery.SenderConfig{Timeout: f.config.RequestTimeout},
		AutoPauseWindow:    f.config.AutoPauseWindow,
		AutoPauseThreshold: f.config.AutoPauseThreshold,
		EventOrdering:      f.config.EventOrdering,
		Metrics:            f.metrics,
		Tracer:             f.tracer,
	}, f.logger)
}

// Start reloads scheduled retries from the store and begins the delivery
// engine and retry scheduler.
func (f *Ferry) Start(ctx context.Context) error {
	if err := f.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("ferry: start scheduler: %w", err)
	}
	f.engine.Start(ctx)
	return nil
}

// Stop gracefully shuts down the delivery engine and retry scheduler,
// waiting up to ShutdownTimeout for in-flight deliveries to finish.
func (f *Ferry) Stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, f.config.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.engine.Stop(ctx)
		f.scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		f.logger.Warn("shutdown timed out with deliveries in flight")
	}
}

// RegisterEventType registers a webhook event type definition in the catalog.
func (f *Ferry) RegisterEventType(ctx context.Context, def catalog.Definition, opts ...catalog.RegisterOption) (*catalog.EventType, error) {
	return f.catalog.RegisterType(ctx, def, opts...)
}

// Publish validates and persists an event, then fans out one delivery task
// per matching active endpoint.
//
// The critical path:
//  1. Look up the event type (reject unknown types in strict mode, reject
//     deprecated types always).
//  2. Validate the payload against the type's JSON Schema, if one is set.
//  3. Persist the event. A caller-supplied ID that already exists makes the
//     publish an idempotent no-op.
//  4. Resolve matching active endpoints.
//  5. Enqueue one queued task per endpoint, skipping endpoints that already
//     hold a live task for this event.
func (f *Ferry) Publish(ctx context.Context, evt *event.Event) error {
	et, err := f.catalog.GetType(ctx, evt.Type)
	switch {
	case err == nil:
		if et.IsDeprecated {
			return fmt.Errorf("%w: %s", ErrEventTypeDeprecated, evt.Type)
		}
		if len(et.Definition.Schema) > 0 {
			if validateErr := f.validator.Validate(et.Definition.Schema, evt.Data); validateErr != nil {
				return fmt.Errorf("%w: %s", ErrPayloadValidationFailed, validateErr.Error())
			}
		}
	case errors.Is(err, ErrEventTypeNotFound):
		if f.config.StrictTypes {
			return fmt.Errorf("%w: %s", ErrEventTypeNotFound, evt.Type)
		}
	default:
		return fmt.Errorf("ferry: lookup event type: %w", err)
	}

	evt.Entity = entity.New()
	if evt.ID.IsNil() {
		evt.ID = id.NewEventID()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	if createErr := f.store.CreateEvent(ctx, evt); createErr != nil {
		if errors.Is(createErr, ErrDuplicateEvent) {
			return nil // idempotent: already published
		}
		return fmt.Errorf("ferry: persist event: %w", createErr)
	}

	if f.metrics != nil {
		f.metrics.EventsPublishedTotal.Inc()
	}

	endpoints, err := f.store.Resolve(ctx, evt.Type)
	if err != nil {
		return fmt.Errorf("ferry: resolve endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil // no matching endpoints — nothing to deliver
	}

	tasks := make([]*delivery.Task, 0, len(endpoints))
	for _, ep := range endpoints {
		// One live task per (endpoint, event) pair.
		if existing, lookupErr := f.store.TaskForEvent(ctx, ep.ID, evt.ID); lookupErr == nil {
			if existing.State != delivery.StateFailed {
				continue
			}
		} else if !errors.Is(lookupErr, ErrTaskNotFound) {
			return fmt.Errorf("ferry: task dedup lookup: %w", lookupErr)
		}

		tasks = append(tasks, &delivery.Task{
			Entity:      entity.New(),
			ID:          id.NewTaskID(),
			EventID:     evt.ID,
			EndpointID:  ep.ID,
			State:       delivery.StateQueued,
			Attempt:     0,
			MaxAttempts: ep.RetryPolicy.MaxAttempts,
		})
	}
	if len(tasks) == 0 {
		return nil
	}

	if err := f.store.EnqueueTasks(ctx, tasks); err != nil {
		return fmt.Errorf("ferry: enqueue tasks: %w", err)
	}

	if f.metrics != nil {
		f.metrics.TasksEnqueuedTotal.Add(float64(len(tasks)))
		f.metrics.QueuedTasks.Add(float64(len(tasks)))
	}

	f.logger.DebugContext(ctx, "event published",
		"event_id", evt.ID,
		"type", evt.Type,
		"tasks", len(tasks),
	)

	return nil
}

// Retry manually re-delivers a permanently failed task. The failed task and
// its ledger history stay untouched; a new task with a fresh attempt budget
// is enqueued, referencing the original.
func (f *Ferry) Retry(ctx context.Context, taskID id.ID) (*delivery.Task, error) {
	orig, err := f.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if orig.State != delivery.StateFailed {
		return nil, fmt.Errorf("%w: %s is %s", ErrTaskNotRetryable, taskID, orig.State)
	}

	ep, err := f.store.GetEndpoint(ctx, orig.EndpointID)
	if err != nil {
		return nil, err
	}
	if ep.Status == endpoint.StatusDisabled {
		return nil, fmt.Errorf("%w: %s", ErrEndpointDisabled, ep.ID)
	}

	t := &delivery.Task{
		Entity:      entity.New(),
		ID:          id.NewTaskID(),
		EventID:     orig.EventID,
		EndpointID:  orig.EndpointID,
		State:       delivery.StateQueued,
		Attempt:     0,
		MaxAttempts: ep.RetryPolicy.MaxAttempts,
		RetryOf:     orig.ID,
	}

	if err := f.store.EnqueueTask(ctx, t); err != nil {
		return nil, fmt.Errorf("ferry: enqueue retry: %w", err)
	}

	if f.metrics != nil {
		f.metrics.TasksEnqueuedTotal.Inc()
		f.metrics.QueuedTasks.Inc()
	}

	f.logger.InfoContext(ctx, "manual retry enqueued",
		"task_id", t.ID, "retry_of", orig.ID)

	return t, nil
}

// TestDelivery fires a synthetic test event at one endpoint, bypassing
// routing. The attempt is recorded in the ledger like any other.
func (f *Ferry) TestDelivery(ctx context.Context, epID id.ID) (*ledger.AttemptRecord, error) {
	ep, err := f.store.GetEndpoint(ctx, epID)
	if err != nil {
		return nil, err
	}
	if ep.Status == endpoint.StatusDisabled {
		return nil, fmt.Errorf("%w: %s", ErrEndpointDisabled, ep.ID)
	}

	evt := &event.Event{
		Entity:     entity.New(),
		ID:         id.NewEventID(),
		Type:       "test.event",
		Data:       map[string]any{"ping": true},
		OccurredAt: time.Now().UTC(),
	}
	if err := f.store.CreateEvent(ctx, evt); err != nil {
		return nil, fmt.Errorf("ferry: persist test event: %w", err)
	}

	t := &delivery.Task{
		Entity:     entity.New(),
		ID:         id.NewTaskID(),
		EventID:    evt.ID,
		EndpointID: ep.ID,
		State:      delivery.StateSending,
		Attempt:    1,
	}
	if err := f.store.EnqueueTask(ctx, t); err != nil {
		return nil, fmt.Errorf("ferry: persist test task: %w", err)
	}

	result := f.sender.Send(ctx, ep, evt, t)

	now := time.Now().UTC()
	outcome := ledger.OutcomeFailed
	t.State = delivery.StateFailed
	if result.StatusCode >= 200 && result.StatusCode < 300 {
		outcome = ledger.OutcomeDelivered
		t.State = delivery.StateSucceeded
	}
	t.LastError = result.Error
	t.LastStatusCode = result.StatusCode
	t.CompletedAt = &now

	rec := &ledger.AttemptRecord{
		TaskID:          t.ID,
		EndpointID:      ep.ID,
		EventID:         evt.ID,
		AttemptNumber:   1,
		RequestHeaders:  result.RequestHeaders,
		RequestBodyHash: result.BodyHash,
		StatusCode:      result.StatusCode,
		ResponseTimeMs:  result.LatencyMs,
		ResponseBody:    result.Response,
		Error:           result.Error,
		Outcome:         outcome,
	}
	if err := f.recorder.Record(ctx, rec); err != nil {
		return nil, fmt.Errorf("ferry: record test attempt: %w", err)
	}
	if err := f.store.UpdateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("ferry: update test task: %w", err)
	}

	return rec, nil
}

// PurgeAttempts removes ledger records older than the cutoff and returns how
// many were removed. Retention is explicit: nothing else deletes records.
func (f *Ferry) PurgeAttempts(ctx context.Context, cutoff time.Time) (int64, error) {
	return f.recorder.Purge(ctx, cutoff)
}

// Endpoints returns the endpoint management service.
func (f *Ferry) Endpoints() *endpoint.Service {
	return f.endpointSvc
}

// Catalog returns the event type catalog.
func (f *Ferry) Catalog() *catalog.Catalog {
	return f.catalog
}

// Ledger returns the attempt ledger for history queries.
func (f *Ferry) Ledger() *ledger.Writer {
	return f.recorder
}

// Store returns the underlying store.
func (f *Ferry) Store() store.Store {
	return f.store
}

// Metrics returns the Prometheus instruments, or nil when metrics are
// disabled.
func (f *Ferry) Metrics() *observability.Metrics {
	return f.metrics
}
