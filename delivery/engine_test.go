package delivery_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meridianlabs/ferry/delivery"
	"github.com/meridianlabs/ferry/endpoint"
	"github.com/meridianlabs/ferry/event"
	"github.com/meridianlabs/ferry/id"
	"github.com/meridianlabs/ferry/internal/entity"
	"github.com/meridianlabs/ferry/ledger"
	"github.com/meridianlabs/ferry/scheduler"
	"github.com/meridianlabs/ferry/store/memory"
)

// harness wires an engine and scheduler over a memory store with fast
// poll and sweep intervals.
type harness struct {
	store  *memory.Store
	engine *delivery.Engine
}

func newHarness(t *testing.T, cfg delivery.EngineConfig) *harness {
	t.Helper()

	s := memory.New()
	logger := slog.Default()
	recorder := ledger.NewWriter(s, s, logger)
	sched := scheduler.New(s, scheduler.Config{SweepInterval: 20 * time.Millisecond}, logger)

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	eng := delivery.NewEngine(s, recorder, sched, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("start scheduler: %v", err)
	}
	eng.Start(ctx)
	t.Cleanup(func() {
		cancel()
		eng.Stop(context.Background())
		sched.Stop()
	})

	return &harness{store: s, engine: eng}
}

// seed creates an endpoint, an event, and one queued task for the pair.
func (h *harness) seed(t *testing.T, ep *endpoint.Endpoint) *delivery.Task {
	t.Helper()
	ctx := context.Background()

	if err := h.store.CreateEndpoint(ctx, ep); err != nil {
		t.Fatalf("create endpoint: %v", err)
	}

	evt := &event.Event{
		Entity:     entity.New(),
		ID:         id.NewEventID(),
		Type:       "order.completed",
		Data:       map[string]any{"order_id": "ord_1"},
		OccurredAt: time.Now().UTC(),
	}
	if err := h.store.CreateEvent(ctx, evt); err != nil {
		t.Fatalf("create event: %v", err)
	}

	task := &delivery.Task{
		Entity:      entity.New(),
		ID:          id.NewTaskID(),
		EventID:     evt.ID,
		EndpointID:  ep.ID,
		State:       delivery.StateQueued,
		MaxAttempts: ep.RetryPolicy.MaxAttempts,
	}
	if err := h.store.EnqueueTask(ctx, task); err != nil {
		t.Fatalf("enqueue task: %v", err)
	}
	return task
}

func fastPolicy(maxAttempts int) endpoint.RetryPolicy {
	return endpoint.RetryPolicy{
		MaxAttempts:    maxAttempts,
		Backoff:        endpoint.BackoffExponential,
		InitialDelayMs: 1,
		MaxDelayMs:     20,
	}
}

func activeEndpoint(url string, policy endpoint.RetryPolicy) *endpoint.Endpoint {
	return &endpoint.Endpoint{
		Entity:        entity.New(),
		ID:            id.NewEndpointID(),
		OwnerID:       "owner-1",
		URL:           url,
		Status:        endpoint.StatusActive,
		EventPatterns: []string{"*"},
		AuthType:      endpoint.AuthNone,
		RetryPolicy:   policy,
	}
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func taskState(h *harness, taskID id.ID) delivery.State {
	got, err := h.store.GetTask(context.Background(), taskID)
	if err != nil {
		return ""
	}
	return got.State
}

func TestEngine_DeliversAndRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := newHarness(t, delivery.EngineConfig{})
	ep := activeEndpoint(srv.URL, fastPolicy(3))
	task := h.seed(t, ep)

	waitFor(t, 2*time.Second, func() bool {
		return taskState(h, task.ID) == delivery.StateSucceeded
	}, "task never succeeded")

	ctx := context.Background()
	records, err := h.store.ListAttemptsByTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 attempt record, got %d", len(records))
	}
	if records[0].Outcome != ledger.OutcomeDelivered {
		t.Errorf("expected delivered outcome, got %s", records[0].Outcome)
	}
	if records[0].StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", records[0].StatusCode)
	}

	got, _ := h.store.GetEndpoint(ctx, ep.ID)
	if got.TotalDeliveries != 1 || got.SuccessfulDeliveries != 1 {
		t.Errorf("counters = %d/%d, want 1/1", got.TotalDeliveries, got.SuccessfulDeliveries)
	}
}

func TestEngine_RetriesTransientFailuresThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := newHarness(t, delivery.EngineConfig{})
	ep := activeEndpoint(srv.URL, fastPolicy(3))
	task := h.seed(t, ep)

	waitFor(t, 5*time.Second, func() bool {
		return taskState(h, task.ID) == delivery.StateSucceeded
	}, "task never succeeded after transient failures")

	records, err := h.store.ListAttemptsByTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 attempt records, got %d", len(records))
	}
	for i, rec := range records[:3] {
		if rec.Outcome != ledger.OutcomeRetrying {
			t.Errorf("record %d: expected retrying, got %s", i, rec.Outcome)
		}
		if rec.AttemptNumber != i+1 {
			t.Errorf("record %d: expected attempt %d, got %d", i, i+1, rec.AttemptNumber)
		}
	}
	if records[3].Outcome != ledger.OutcomeDelivered {
		t.Errorf("final record: expected delivered, got %s", records[3].Outcome)
	}
}

func TestEngine_ClientErrorFailsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := newHarness(t, delivery.EngineConfig{})
	ep := activeEndpoint(srv.URL, fastPolicy(3))
	task := h.seed(t, ep)

	waitFor(t, 2*time.Second, func() bool {
		return taskState(h, task.ID) == delivery.StateFailed
	}, "task never failed")

	if n := calls.Load(); n != 1 {
		t.Errorf("expected exactly 1 attempt for a 404, got %d", n)
	}

	records, _ := h.store.ListAttemptsByTask(context.Background(), task.ID)
	if len(records) != 1 || records[0].Outcome != ledger.OutcomeFailed {
		t.Errorf("expected a single failed record, got %+v", records)
	}
}

func TestEngine_BudgetExhaustionFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := newHarness(t, delivery.EngineConfig{})
	ep := activeEndpoint(srv.URL, fastPolicy(2))
	task := h.seed(t, ep)

	waitFor(t, 5*time.Second, func() bool {
		return taskState(h, task.ID) == delivery.StateFailed
	}, "task never exhausted its budget")

	records, _ := h.store.ListAttemptsByTask(context.Background(), task.ID)
	// maxAttempts+1 total attempts.
	if len(records) != 3 {
		t.Fatalf("expected 3 attempt records, got %d", len(records))
	}
	if records[2].Outcome != ledger.OutcomeFailed {
		t.Errorf("final record should be failed, got %s", records[2].Outcome)
	}

	got, _ := h.store.GetEndpoint(context.Background(), ep.ID)
	if got.TotalDeliveries != 1 || got.FailedDeliveries != 1 {
		t.Errorf("counters = total %d failed %d, want 1/1", got.TotalDeliveries, got.FailedDeliveries)
	}
}

func TestEngine_RateLimitDropAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := newHarness(t, delivery.EngineConfig{})
	ep := activeEndpoint(srv.URL, fastPolicy(0))
	ep.RateLimit = endpoint.RateLimit{
		Enabled:           true,
		RequestsPerMinute: 1,
		OverflowAction:    endpoint.OverflowDrop,
	}

	ctx := context.Background()
	if err := h.store.CreateEndpoint(ctx, ep); err != nil {
		t.Fatalf("create endpoint: %v", err)
	}

	tasks := make([]*delivery.Task, 0, 2)
	for range 2 {
		evt := &event.Event{
			Entity: entity.New(), ID: id.NewEventID(),
			Type: "order.completed", Data: map[string]any{},
			OccurredAt: time.Now().UTC(),
		}
		if err := h.store.CreateEvent(ctx, evt); err != nil {
			t.Fatalf("create event: %v", err)
		}
		task := &delivery.Task{
			Entity: entity.New(), ID: id.NewTaskID(),
			EventID: evt.ID, EndpointID: ep.ID, State: delivery.StateQueued,
		}
		if err := h.store.EnqueueTask(ctx, task); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		tasks = append(tasks, task)
	}

	waitFor(t, 2*time.Second, func() bool {
		succeeded, _ := h.store.CountTasksByState(ctx, delivery.StateSucceeded)
		failed, _ := h.store.CountTasksByState(ctx, delivery.StateFailed)
		return succeeded == 1 && failed == 1
	}, "expected one delivered and one dropped task")

	// The dropped task carries a distinct ledger outcome and made no HTTP call.
	dropped := tasks[0]
	if taskState(h, dropped.ID) != delivery.StateFailed {
		dropped = tasks[1]
	}
	records, _ := h.store.ListAttemptsByTask(ctx, dropped.ID)
	if len(records) != 1 || records[0].Outcome != ledger.OutcomeDropped {
		t.Fatalf("expected a single dropped record, got %+v", records)
	}
	if records[0].AttemptNumber != 0 {
		t.Errorf("dropped before any attempt should record attempt 0, got %d", records[0].AttemptNumber)
	}
}

func TestEngine_AutoPausesUnhealthyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := newHarness(t, delivery.EngineConfig{
		AutoPauseWindow:    4,
		AutoPauseThreshold: 0.5,
	})
	ep := activeEndpoint(srv.URL, fastPolicy(0))

	ctx := context.Background()
	if err := h.store.CreateEndpoint(ctx, ep); err != nil {
		t.Fatalf("create endpoint: %v", err)
	}

	for range 4 {
		evt := &event.Event{
			Entity: entity.New(), ID: id.NewEventID(),
			Type: "order.completed", Data: map[string]any{},
			OccurredAt: time.Now().UTC(),
		}
		if err := h.store.CreateEvent(ctx, evt); err != nil {
			t.Fatalf("create event: %v", err)
		}
		task := &delivery.Task{
			Entity: entity.New(), ID: id.NewTaskID(),
			EventID: evt.ID, EndpointID: ep.ID, State: delivery.StateQueued,
		}
		if err := h.store.EnqueueTask(ctx, task); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	waitFor(t, 3*time.Second, func() bool {
		got, err := h.store.GetEndpoint(ctx, ep.ID)
		return err == nil && got.Status == endpoint.StatusFailed
	}, "endpoint was never auto-paused")
}

func TestEngine_DisabledEndpointCancelsTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("disabled endpoint must not receive deliveries")
	}))
	defer srv.Close()

	h := newHarness(t, delivery.EngineConfig{})
	ep := activeEndpoint(srv.URL, fastPolicy(3))
	ep.Status = endpoint.StatusDisabled
	task := h.seed(t, ep)

	waitFor(t, 2*time.Second, func() bool {
		return taskState(h, task.ID) == delivery.StateFailed
	}, "task for disabled endpoint never cancelled")

	// Cancellation is not a delivery attempt; nothing goes in the ledger.
	records, _ := h.store.ListAttemptsByTask(context.Background(), task.ID)
	if len(records) != 0 {
		t.Errorf("expected no ledger records, got %d", len(records))
	}
}

func TestEngine_RetryAfterDelaysNextAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := newHarness(t, delivery.EngineConfig{})
	ep := activeEndpoint(srv.URL, fastPolicy(2))
	task := h.seed(t, ep)

	start := time.Now()
	waitFor(t, 5*time.Second, func() bool {
		return taskState(h, task.ID) == delivery.StateSucceeded
	}, "task never succeeded")

	// The hinted 1s exceeds the 1ms computed backoff.
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("second attempt ran after %v, before the Retry-After hint", elapsed)
	}
}

func TestEngine_RateLimitQueueActionKeepsTaskQueued(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := newHarness(t, delivery.EngineConfig{})
	ep := activeEndpoint(srv.URL, fastPolicy(3))
	ep.RateLimit = endpoint.RateLimit{
		Enabled:           true,
		RequestsPerMinute: 1,
		OverflowAction:    endpoint.OverflowQueue,
	}

	ctx := context.Background()
	if err := h.store.CreateEndpoint(ctx, ep); err != nil {
		t.Fatalf("create endpoint: %v", err)
	}

	tasks := make([]*delivery.Task, 0, 2)
	for range 2 {
		evt := &event.Event{
			Entity: entity.New(), ID: id.NewEventID(),
			Type: "order.completed", Data: map[string]any{},
			OccurredAt: time.Now().UTC(),
		}
		if err := h.store.CreateEvent(ctx, evt); err != nil {
			t.Fatalf("create event: %v", err)
		}
		task := &delivery.Task{
			Entity: entity.New(), ID: id.NewTaskID(),
			EventID: evt.ID, EndpointID: ep.ID, State: delivery.StateQueued,
			MaxAttempts: 3,
		}
		if err := h.store.EnqueueTask(ctx, task); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		tasks = append(tasks, task)
	}

	// The bucket holds a single token, so exactly one task gets through.
	waitFor(t, 2*time.Second, func() bool {
		succeeded, _ := h.store.CountTasksByState(ctx, delivery.StateSucceeded)
		return succeeded == 1
	}, "first task never delivered")

	// Give the poll loop several rounds to re-offer the denied task.
	time.Sleep(200 * time.Millisecond)

	denied := tasks[0]
	if taskState(h, denied.ID) == delivery.StateSucceeded {
		denied = tasks[1]
	}

	// Backpressure is not failure: the task stays queued with its budget
	// untouched and nothing in the ledger.
	got, err := h.store.GetTask(ctx, denied.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.State != delivery.StateQueued {
		t.Fatalf("denied task should remain queued, got %s", got.State)
	}
	if got.Attempt != 0 {
		t.Errorf("queue overflow must not consume an attempt, got %d", got.Attempt)
	}
	records, _ := h.store.ListAttemptsByTask(ctx, denied.ID)
	if len(records) != 0 {
		t.Errorf("expected no ledger records for the queued task, got %d", len(records))
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected exactly 1 HTTP call, got %d", n)
	}
}

func TestEngine_RateLimitErrorActionConsumesAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := newHarness(t, delivery.EngineConfig{})
	ep := activeEndpoint(srv.URL, fastPolicy(1))
	ep.RateLimit = endpoint.RateLimit{
		Enabled:           true,
		RequestsPerMinute: 1,
		OverflowAction:    endpoint.OverflowError,
	}

	ctx := context.Background()
	if err := h.store.CreateEndpoint(ctx, ep); err != nil {
		t.Fatalf("create endpoint: %v", err)
	}

	tasks := make([]*delivery.Task, 0, 2)
	for range 2 {
		evt := &event.Event{
			Entity: entity.New(), ID: id.NewEventID(),
			Type: "order.completed", Data: map[string]any{},
			OccurredAt: time.Now().UTC(),
		}
		if err := h.store.CreateEvent(ctx, evt); err != nil {
			t.Fatalf("create event: %v", err)
		}
		task := &delivery.Task{
			Entity: entity.New(), ID: id.NewTaskID(),
			EventID: evt.ID, EndpointID: ep.ID, State: delivery.StateQueued,
			MaxAttempts: 1,
		}
		if err := h.store.EnqueueTask(ctx, task); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		tasks = append(tasks, task)
	}

	// One task spends the only token; the other burns its budget on
	// limiter denials and fails without ever reaching the wire.
	waitFor(t, 5*time.Second, func() bool {
		succeeded, _ := h.store.CountTasksByState(ctx, delivery.StateSucceeded)
		failed, _ := h.store.CountTasksByState(ctx, delivery.StateFailed)
		return succeeded == 1 && failed == 1
	}, "expected one delivered and one rate-limit-failed task")

	denied := tasks[0]
	if taskState(h, denied.ID) == delivery.StateSucceeded {
		denied = tasks[1]
	}

	got, _ := h.store.GetTask(ctx, denied.ID)
	if got.Attempt != 2 {
		t.Errorf("expected both budget attempts consumed, got %d", got.Attempt)
	}
	if got.LastError != "rate limit exceeded" {
		t.Errorf("unexpected last error %q", got.LastError)
	}

	// Each denial is ledgered like a failed attempt: retrying, then failed.
	records, _ := h.store.ListAttemptsByTask(ctx, denied.ID)
	if len(records) != 2 {
		t.Fatalf("expected 2 attempt records, got %d", len(records))
	}
	if records[0].Outcome != ledger.OutcomeRetrying || records[0].AttemptNumber != 1 {
		t.Errorf("first record: got %s attempt %d", records[0].Outcome, records[0].AttemptNumber)
	}
	if records[1].Outcome != ledger.OutcomeFailed || records[1].AttemptNumber != 2 {
		t.Errorf("second record: got %s attempt %d", records[1].Outcome, records[1].AttemptNumber)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("denied task must not reach the endpoint, got %d HTTP calls", n)
	}
}

func TestEngine_EventOrderingSingleFlightPerEndpoint(t *testing.T) {
	var (
		mu         sync.Mutex
		inFlight   int
		maxFlight  int
		totalCalls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		totalCalls++
		if inFlight > maxFlight {
			maxFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := newHarness(t, delivery.EngineConfig{EventOrdering: true})
	ep := activeEndpoint(srv.URL, fastPolicy(3))

	ctx := context.Background()
	if err := h.store.CreateEndpoint(ctx, ep); err != nil {
		t.Fatalf("create endpoint: %v", err)
	}

	const n = 4
	for range n {
		evt := &event.Event{
			Entity: entity.New(), ID: id.NewEventID(),
			Type: "order.completed", Data: map[string]any{},
			OccurredAt: time.Now().UTC(),
		}
		if err := h.store.CreateEvent(ctx, evt); err != nil {
			t.Fatalf("create event: %v", err)
		}
		task := &delivery.Task{
			Entity: entity.New(), ID: id.NewTaskID(),
			EventID: evt.ID, EndpointID: ep.ID, State: delivery.StateQueued,
			MaxAttempts: 3,
		}
		if err := h.store.EnqueueTask(ctx, task); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	waitFor(t, 5*time.Second, func() bool {
		succeeded, _ := h.store.CountTasksByState(ctx, delivery.StateSucceeded)
		return succeeded == n
	}, "not all tasks delivered")

	mu.Lock()
	defer mu.Unlock()
	if totalCalls != n {
		t.Errorf("expected %d deliveries, got %d", n, totalCalls)
	}
	if maxFlight != 1 {
		t.Errorf("ordering requires one send in flight per endpoint, saw %d", maxFlight)
	}
}
