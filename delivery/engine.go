package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/meridianlabs/ferry/endpoint"
	"github.com/meridianlabs/ferry/event"
	"github.com/meridianlabs/ferry/id"
	"github.com/meridianlabs/ferry/ledger"
	"github.com/meridianlabs/ferry/observability"
	"github.com/meridianlabs/ferry/ratelimit"
)

// EngineStore is the interface the engine needs for delivery operations.
type EngineStore interface {
	Dequeue(ctx context.Context, limit int) ([]*Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	ReleaseTask(ctx context.Context, taskID id.ID) error
	GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error)
	GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error)
	SetStatus(ctx context.Context, epID id.ID, status endpoint.Status) error
}

// Recorder appends attempt records to the ledger. The engine never advances
// a task past an attempt unless the record was durably written first.
type Recorder interface {
	Record(ctx context.Context, rec *ledger.AttemptRecord) error
}

// RetryScheduler holds retrying tasks until their next attempt is due.
type RetryScheduler interface {
	Schedule(t *Task)
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Concurrency  int
	PollInterval time.Duration
	BatchSize    int
	Sender       SenderConfig

	// AutoPauseWindow is the trailing attempt count watched per endpoint.
	AutoPauseWindow int

	// AutoPauseThreshold is the minimum success rate over the window.
	AutoPauseThreshold float64

	// EventOrdering forces single-flight sequential delivery per endpoint,
	// trading throughput for cross-event ordering.
	EventOrdering bool

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

func (c *EngineConfig) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.AutoPauseWindow <= 0 {
		c.AutoPauseWindow = 20
	}
	if c.AutoPauseThreshold <= 0 || c.AutoPauseThreshold > 1 {
		c.AutoPauseThreshold = 0.5
	}
}

// Engine is the delivery worker pool. It dequeues tasks, gates them through
// the per-endpoint rate limiter, performs the signed HTTP send, classifies
// the outcome, and drives the task state machine with write-then-transition
// ordering against the ledger.
type Engine struct {
	store     EngineStore
	recorder  Recorder
	scheduler RetryScheduler
	sender    *Sender
	retrier   *Retrier
	limiter   *ratelimit.Limiter
	health    *HealthTracker
	config    EngineConfig
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]bool // endpoint IDs with a send in flight (EventOrdering)
}

// NewEngine creates a delivery engine.
func NewEngine(store EngineStore, recorder Recorder, scheduler RetryScheduler, cfg EngineConfig, logger *slog.Logger) *Engine {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		recorder:  recorder,
		scheduler: scheduler,
		sender:    NewSender(cfg.Sender),
		retrier:   NewRetrier(),
		limiter:   ratelimit.New(),
		health:    NewHealthTracker(cfg.AutoPauseWindow, cfg.AutoPauseThreshold),
		config:    cfg,
		logger:    logger.With("component", "engine"),
		inflight:  make(map[string]bool),
	}
}

// Limiter exposes the engine's rate limiter so operators can reset an
// endpoint's bucket.
func (e *Engine) Limiter() *ratelimit.Limiter {
	return e.limiter
}

// Start begins the delivery workers and poll loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight deliveries to complete.
func (e *Engine) Stop(_ context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// pollLoop periodically dequeues tasks and dispatches them to workers.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.store.Dequeue(ctx, e.config.BatchSize)
			if err != nil {
				e.logger.ErrorContext(ctx, "dequeue failed", "error", err)
				continue
			}

			for _, t := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				e.wg.Add(1)
				go func(task *Task) {
					defer e.wg.Done()
					defer func() { <-sem }()
					e.process(ctx, task)
				}(t)
			}
		}
	}
}

// process handles a single claimed task end to end.
func (e *Engine) process(ctx context.Context, t *Task) {
	ep, err := e.store.GetEndpoint(ctx, t.EndpointID)
	if err != nil {
		e.logger.ErrorContext(ctx, "get endpoint failed",
			"task_id", t.ID, "endpoint_id", t.EndpointID, "error", err)
		e.release(ctx, t)
		return
	}

	// A disabled endpoint cancels its pending tasks: nothing is sent and no
	// retry is scheduled.
	if ep.Status == endpoint.StatusDisabled {
		now := time.Now().UTC()
		t.State = StateFailed
		t.LastError = "endpoint disabled"
		t.CompletedAt = &now
		if err := e.store.UpdateTask(ctx, t); err != nil {
			e.logger.ErrorContext(ctx, "update task failed", "task_id", t.ID, "error", err)
		}
		e.logger.InfoContext(ctx, "task cancelled for disabled endpoint",
			"task_id", t.ID, "endpoint_id", ep.ID)
		return
	}

	if e.config.EventOrdering {
		if !e.acquireEndpoint(ep.ID.String()) {
			e.release(ctx, t)
			return
		}
		defer e.releaseEndpoint(ep.ID.String())
	}

	// Rate limiter gate.
	if ep.RateLimit.Enabled && !e.limiter.Allow(ep.ID.String(), ep.RateLimit.RequestsPerMinute) {
		e.handleOverflow(ctx, t, ep)
		return
	}

	evt, err := e.store.GetEvent(ctx, t.EventID)
	if err != nil {
		e.logger.ErrorContext(ctx, "get event failed",
			"task_id", t.ID, "event_id", t.EventID, "error", err)
		e.release(ctx, t)
		return
	}

	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartDeliverySpan(ctx, t.ID.String(), t.EventID.String(), t.EndpointID.String())
	}

	t.State = StateSending
	t.Attempt++
	result := e.sender.Send(ctx, ep, evt, t)

	t.LastError = result.Error
	t.LastStatusCode = result.StatusCode

	decision := e.retrier.Decide(result, t)

	rec := &ledger.AttemptRecord{
		TaskID:          t.ID,
		EndpointID:      t.EndpointID,
		EventID:         t.EventID,
		AttemptNumber:   t.Attempt,
		RequestHeaders:  result.RequestHeaders,
		RequestBodyHash: result.BodyHash,
		StatusCode:      result.StatusCode,
		ResponseTimeMs:  result.LatencyMs,
		ResponseBody:    result.Response,
		Error:           result.Error,
		Outcome:         outcomeFor(decision),
	}

	// Write-then-transition: the attempt must be durable in the ledger
	// before the task advances. On failure the claim is released so the
	// same attempt is retried by a later poll.
	if recErr := e.recorder.Record(ctx, rec); recErr != nil {
		e.logger.ErrorContext(ctx, "ledger write failed, releasing task",
			"task_id", t.ID, "error", recErr)
		t.Attempt--
		e.release(ctx, t)
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, result.StatusCode, result.LatencyMs, recErr.Error())
		}
		return
	}

	latencySeconds := float64(result.LatencyMs) / 1000.0

	switch decision {
	case Succeeded:
		now := time.Now().UTC()
		t.State = StateSucceeded
		t.CompletedAt = &now
		if e.config.Metrics != nil {
			e.config.Metrics.RecordAttempt("delivered", latencySeconds)
			e.config.Metrics.QueuedTasks.Dec()
		}
		e.logger.DebugContext(ctx, "delivered",
			"task_id", t.ID, "status", result.StatusCode, "latency_ms", result.LatencyMs)

	case Retry:
		delay := e.retrier.NextDelay(ep.RetryPolicy, t.Attempt, result.RetryAfter)
		t.State = StateRetrying
		t.NextAttemptAt = time.Now().UTC().Add(delay)
		if e.config.Metrics != nil {
			e.config.Metrics.RecordAttempt("retrying", latencySeconds)
		}
		e.logger.DebugContext(ctx, "retry scheduled",
			"task_id", t.ID, "attempt", t.Attempt, "next_at", t.NextAttemptAt)

	case Fail:
		now := time.Now().UTC()
		t.State = StateFailed
		t.CompletedAt = &now
		if e.config.Metrics != nil {
			e.config.Metrics.RecordAttempt("failed", latencySeconds)
			e.config.Metrics.QueuedTasks.Dec()
		}
		e.logger.WarnContext(ctx, "delivery failed permanently",
			"task_id", t.ID, "status", result.StatusCode, "error", result.Error)
	}

	if span != nil {
		e.config.Tracer.EndDeliverySpan(span, result.StatusCode, result.LatencyMs, result.Error)
	}

	if err := e.store.UpdateTask(ctx, t); err != nil {
		e.logger.ErrorContext(ctx, "update task failed", "task_id", t.ID, "error", err)
		return
	}

	if t.State == StateRetrying && e.scheduler != nil {
		e.scheduler.Schedule(t)
	}

	e.trackHealth(ctx, ep, decision == Succeeded)
}

// handleOverflow applies the endpoint's configured overflow action after a
// rate limiter denial. Backpressure is not conflated with endpoint-failure
// backoff unless the endpoint opted into the error action.
func (e *Engine) handleOverflow(ctx context.Context, t *Task, ep *endpoint.Endpoint) {
	action := ep.RateLimit.OverflowAction
	if action == "" {
		action = endpoint.OverflowQueue
	}
	if e.config.Metrics != nil {
		e.config.Metrics.RecordRateLimited(string(action))
	}

	switch action {
	case endpoint.OverflowDrop:
		rec := &ledger.AttemptRecord{
			TaskID:        t.ID,
			EndpointID:    t.EndpointID,
			EventID:       t.EventID,
			AttemptNumber: t.Attempt, // attempts actually made; 0 if none
			Error:         "rate limit exceeded",
			Outcome:       ledger.OutcomeDropped,
		}
		if err := e.recorder.Record(ctx, rec); err != nil {
			e.logger.ErrorContext(ctx, "ledger write failed, releasing task",
				"task_id", t.ID, "error", err)
			e.release(ctx, t)
			return
		}

		now := time.Now().UTC()
		t.State = StateFailed
		t.LastError = "rate limit exceeded"
		t.CompletedAt = &now
		if err := e.store.UpdateTask(ctx, t); err != nil {
			e.logger.ErrorContext(ctx, "update task failed", "task_id", t.ID, "error", err)
		}
		if e.config.Metrics != nil {
			e.config.Metrics.QueuedTasks.Dec()
		}
		e.logger.InfoContext(ctx, "task dropped by rate limiter",
			"task_id", t.ID, "endpoint_id", ep.ID)

	case endpoint.OverflowError:
		// The denial consumes an attempt and follows the backoff schedule.
		t.Attempt++
		decision := e.retrier.retryOrFail(t)

		rec := &ledger.AttemptRecord{
			TaskID:        t.ID,
			EndpointID:    t.EndpointID,
			EventID:       t.EventID,
			AttemptNumber: t.Attempt,
			Error:         "rate limit exceeded",
			Outcome:       outcomeFor(decision),
		}
		if err := e.recorder.Record(ctx, rec); err != nil {
			e.logger.ErrorContext(ctx, "ledger write failed, releasing task",
				"task_id", t.ID, "error", err)
			t.Attempt--
			e.release(ctx, t)
			return
		}

		t.LastError = "rate limit exceeded"
		if decision == Retry {
			t.State = StateRetrying
			t.NextAttemptAt = time.Now().UTC().Add(e.retrier.NextDelay(ep.RetryPolicy, t.Attempt, 0))
		} else {
			now := time.Now().UTC()
			t.State = StateFailed
			t.CompletedAt = &now
			if e.config.Metrics != nil {
				e.config.Metrics.QueuedTasks.Dec()
			}
		}
		if err := e.store.UpdateTask(ctx, t); err != nil {
			e.logger.ErrorContext(ctx, "update task failed", "task_id", t.ID, "error", err)
			return
		}
		if t.State == StateRetrying && e.scheduler != nil {
			e.scheduler.Schedule(t)
		}

	default: // OverflowQueue
		// The task stays queued and no attempt is consumed; a later poll
		// offers it to the limiter again.
		e.release(ctx, t)
	}
}

// trackHealth records the attempt outcome and auto-pauses the endpoint when
// its trailing success rate falls below the threshold.
func (e *Engine) trackHealth(ctx context.Context, ep *endpoint.Endpoint, success bool) {
	if !e.health.Record(ep.ID.String(), success) {
		return
	}
	if ep.Status != endpoint.StatusActive {
		return
	}

	if err := e.store.SetStatus(ctx, ep.ID, endpoint.StatusFailed); err != nil {
		e.logger.ErrorContext(ctx, "auto-pause failed",
			"endpoint_id", ep.ID, "error", err)
		return
	}

	e.health.Reset(ep.ID.String())
	if e.config.Metrics != nil {
		e.config.Metrics.AutoPausedTotal.Inc()
	}
	e.logger.WarnContext(ctx, "endpoint auto-paused after sustained failures",
		"endpoint_id", ep.ID)
}

func (e *Engine) release(ctx context.Context, t *Task) {
	if err := e.store.ReleaseTask(ctx, t.ID); err != nil {
		e.logger.ErrorContext(ctx, "release task failed", "task_id", t.ID, "error", err)
	}
}

func (e *Engine) acquireEndpoint(epID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[epID] {
		return false
	}
	e.inflight[epID] = true
	return true
}

func (e *Engine) releaseEndpoint(epID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, epID)
}

func outcomeFor(d Decision) ledger.Outcome {
	switch d {
	case Succeeded:
		return ledger.OutcomeDelivered
	case Retry:
		return ledger.OutcomeRetrying
	default:
		return ledger.OutcomeFailed
	}
}
