package ferry_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meridianlabs/ferry"
	"github.com/meridianlabs/ferry/catalog"
	"github.com/meridianlabs/ferry/delivery"
	"github.com/meridianlabs/ferry/endpoint"
	"github.com/meridianlabs/ferry/event"
	"github.com/meridianlabs/ferry/id"
	"github.com/meridianlabs/ferry/ledger"
	"github.com/meridianlabs/ferry/store/memory"
)

func newFerry(t *testing.T, opts ...ferry.Option) *ferry.Ferry {
	t.Helper()
	opts = append([]ferry.Option{ferry.WithStore(memory.New())}, opts...)
	f, err := ferry.New(opts...)
	if err != nil {
		t.Fatalf("new ferry: %v", err)
	}
	return f
}

func createEndpoint(t *testing.T, f *ferry.Ferry, patterns ...string) *endpoint.Endpoint {
	t.Helper()
	ep, err := f.Endpoints().Create(context.Background(), endpoint.Input{
		OwnerID:       "owner-1",
		URL:           "https://hooks.example.com/a",
		EventPatterns: patterns,
	})
	if err != nil {
		t.Fatalf("create endpoint: %v", err)
	}
	return ep
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := ferry.New(); !errors.Is(err, ferry.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestPublish_FansOutToMatchingEndpoints(t *testing.T) {
	f := newFerry(t)
	ctx := context.Background()

	matching := createEndpoint(t, f, "order.*")
	createEndpoint(t, f, "invoice.*")

	evt := &event.Event{Type: "order.completed", Data: map[string]any{"x": 1}}
	if err := f.Publish(ctx, evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	tasks, err := f.Store().ListTasksByEvent(ctx, evt.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].EndpointID.String() != matching.ID.String() {
		t.Error("task should target the matching endpoint")
	}
	if tasks[0].State != delivery.StateQueued {
		t.Errorf("new task should be queued, got %s", tasks[0].State)
	}
	if tasks[0].MaxAttempts != matching.RetryPolicy.MaxAttempts {
		t.Errorf("task budget should come from the endpoint policy")
	}
}

func TestPublish_SkipsPausedEndpoints(t *testing.T) {
	f := newFerry(t)
	ctx := context.Background()

	ep := createEndpoint(t, f, "order.*")
	if err := f.Endpoints().Pause(ctx, ep.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	evt := &event.Event{Type: "order.completed", Data: map[string]any{}}
	if err := f.Publish(ctx, evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	tasks, _ := f.Store().ListTasksByEvent(ctx, evt.ID)
	if len(tasks) != 0 {
		t.Errorf("paused endpoint should receive no tasks, got %d", len(tasks))
	}
}

func TestPublish_IdempotentByEventID(t *testing.T) {
	f := newFerry(t)
	ctx := context.Background()

	createEndpoint(t, f, "*")

	evtID := id.NewEventID()
	for range 2 {
		evt := &event.Event{ID: evtID, Type: "order.completed", Data: map[string]any{}}
		if err := f.Publish(ctx, evt); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	tasks, _ := f.Store().ListTasksByEvent(ctx, evtID)
	if len(tasks) != 1 {
		t.Errorf("duplicate publish must not create new tasks, got %d", len(tasks))
	}
}

func TestPublish_SchemaValidation(t *testing.T) {
	f := newFerry(t)
	ctx := context.Background()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"order_id": {"type": "string"}},
		"required": ["order_id"]
	}`)
	if _, err := f.RegisterEventType(ctx, catalog.Definition{
		Name:   "order.completed",
		Schema: schema,
	}); err != nil {
		t.Fatalf("register type: %v", err)
	}
	createEndpoint(t, f, "order.*")

	bad := &event.Event{Type: "order.completed", Data: map[string]any{"nope": true}}
	if err := f.Publish(ctx, bad); !errors.Is(err, ferry.ErrPayloadValidationFailed) {
		t.Fatalf("expected ErrPayloadValidationFailed, got %v", err)
	}

	good := &event.Event{Type: "order.completed", Data: map[string]any{"order_id": "ord_1"}}
	if err := f.Publish(ctx, good); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
}

func TestPublish_DeprecatedTypeRejected(t *testing.T) {
	f := newFerry(t)
	ctx := context.Background()

	if _, err := f.RegisterEventType(ctx, catalog.Definition{Name: "order.completed"}); err != nil {
		t.Fatalf("register type: %v", err)
	}
	if err := f.Catalog().DeleteType(ctx, "order.completed"); err != nil {
		t.Fatalf("delete type: %v", err)
	}

	evt := &event.Event{Type: "order.completed", Data: map[string]any{}}
	if err := f.Publish(ctx, evt); !errors.Is(err, ferry.ErrEventTypeDeprecated) {
		t.Fatalf("expected ErrEventTypeDeprecated, got %v", err)
	}
}

func TestPublish_StrictTypesRejectsUnknown(t *testing.T) {
	f := newFerry(t, ferry.WithStrictTypes())

	evt := &event.Event{Type: "never.registered", Data: map[string]any{}}
	if err := f.Publish(context.Background(), evt); !errors.Is(err, ferry.ErrEventTypeNotFound) {
		t.Fatalf("expected ErrEventTypeNotFound, got %v", err)
	}
}

func TestRetry_ClonesFailedTask(t *testing.T) {
	f := newFerry(t)
	ctx := context.Background()

	ep := createEndpoint(t, f, "*")
	evt := &event.Event{Type: "order.completed", Data: map[string]any{}}
	if err := f.Publish(ctx, evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	tasks, _ := f.Store().ListTasksByEvent(ctx, evt.ID)
	orig := tasks[0]

	// A queued task is not retryable.
	if _, err := f.Retry(ctx, orig.ID); !errors.Is(err, ferry.ErrTaskNotRetryable) {
		t.Fatalf("expected ErrTaskNotRetryable, got %v", err)
	}

	// Fail it, then retry.
	now := time.Now().UTC()
	orig.State = delivery.StateFailed
	orig.Attempt = ep.RetryPolicy.MaxAttempts + 1
	orig.CompletedAt = &now
	if err := f.Store().UpdateTask(ctx, orig); err != nil {
		t.Fatalf("update task: %v", err)
	}

	clone, err := f.Retry(ctx, orig.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if clone.ID.String() == orig.ID.String() {
		t.Fatal("retry must create a new task")
	}
	if clone.RetryOf.String() != orig.ID.String() {
		t.Error("clone should reference the original task")
	}
	if clone.State != delivery.StateQueued || clone.Attempt != 0 {
		t.Error("clone should start with a fresh attempt budget")
	}

	// The original stays failed.
	got, _ := f.Store().GetTask(ctx, orig.ID)
	if got.State != delivery.StateFailed {
		t.Error("original task must remain failed")
	}
}

func TestRetry_DisabledEndpointRejected(t *testing.T) {
	f := newFerry(t)
	ctx := context.Background()

	ep := createEndpoint(t, f, "*")
	evt := &event.Event{Type: "order.completed", Data: map[string]any{}}
	if err := f.Publish(ctx, evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	tasks, _ := f.Store().ListTasksByEvent(ctx, evt.ID)
	orig := tasks[0]
	now := time.Now().UTC()
	orig.State = delivery.StateFailed
	orig.CompletedAt = &now
	if err := f.Store().UpdateTask(ctx, orig); err != nil {
		t.Fatalf("update task: %v", err)
	}

	if err := f.Endpoints().Disable(ctx, ep.ID); err != nil {
		t.Fatalf("disable: %v", err)
	}

	if _, err := f.Retry(ctx, orig.ID); !errors.Is(err, ferry.ErrEndpointDisabled) {
		t.Fatalf("expected ErrEndpointDisabled, got %v", err)
	}
}

func TestTestDelivery_RecordsAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFerry(t)
	ctx := context.Background()

	ep, err := f.Endpoints().Create(ctx, endpoint.Input{
		OwnerID:       "owner-1",
		URL:           srv.URL,
		EventPatterns: []string{"*"},
	})
	if err != nil {
		t.Fatalf("create endpoint: %v", err)
	}

	rec, err := f.TestDelivery(ctx, ep.ID)
	if err != nil {
		t.Fatalf("test delivery: %v", err)
	}
	if rec.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.StatusCode)
	}

	// The synthetic attempt lands in the ledger like any other.
	history, err := f.Ledger().ListByEndpoint(ctx, ep.ID, ledger.ListOpts{})
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(history) != 1 || history[0].Outcome != ledger.OutcomeDelivered {
		t.Errorf("expected one delivered record, got %+v", history)
	}
}

func TestPurgeAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFerry(t)
	ctx := context.Background()

	ep, err := f.Endpoints().Create(ctx, endpoint.Input{
		OwnerID:       "owner-1",
		URL:           srv.URL,
		EventPatterns: []string{"*"},
	})
	if err != nil {
		t.Fatalf("create endpoint: %v", err)
	}
	if _, err := f.TestDelivery(ctx, ep.ID); err != nil {
		t.Fatalf("test delivery: %v", err)
	}

	purged, err := f.PurgeAttempts(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged record, got %d", purged)
	}
}
