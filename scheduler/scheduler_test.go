package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meridianlabs/ferry/delivery"
	"github.com/meridianlabs/ferry/id"
)

type stubStore struct {
	mu       sync.Mutex
	requeued []string
	retrying []*delivery.Task
	failNext bool
}

func (s *stubStore) RequeueTask(_ context.Context, taskID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("transient store error")
	}
	s.requeued = append(s.requeued, taskID.String())
	return nil
}

func (s *stubStore) ListRetryingTasks(_ context.Context) ([]*delivery.Task, error) {
	return s.retrying, nil
}

func (s *stubStore) requeuedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requeued...)
}

func retryingTask(due time.Time) *delivery.Task {
	return &delivery.Task{
		ID:            id.NewTaskID(),
		State:         delivery.StateRetrying,
		NextAttemptAt: due,
	}
}

func TestScheduler_RequeuesDueTasks(t *testing.T) {
	store := &stubStore{}
	s := New(store, Config{SweepInterval: 10 * time.Millisecond}, nil)

	due := retryingTask(time.Now().UTC().Add(-time.Second))
	future := retryingTask(time.Now().UTC().Add(time.Hour))
	s.Schedule(due)
	s.Schedule(future)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(store.requeuedIDs()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := store.requeuedIDs()
	if len(got) != 1 || got[0] != due.ID.String() {
		t.Fatalf("expected only the due task requeued, got %v", got)
	}
	if s.Len() != 1 {
		t.Errorf("future task should remain scheduled, heap len = %d", s.Len())
	}
}

func TestScheduler_OrdersByDueTime(t *testing.T) {
	store := &stubStore{}
	s := New(store, Config{SweepInterval: 10 * time.Millisecond}, nil)

	later := retryingTask(time.Now().UTC().Add(-time.Second))
	earlier := retryingTask(time.Now().UTC().Add(-time.Minute))
	s.Schedule(later)
	s.Schedule(earlier)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(store.requeuedIDs()) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := store.requeuedIDs()
	if len(got) != 2 {
		t.Fatalf("expected 2 requeued, got %d", len(got))
	}
	if got[0] != earlier.ID.String() {
		t.Error("earliest due task should be requeued first")
	}
}

func TestScheduler_RecoversRetryingTasksOnStart(t *testing.T) {
	store := &stubStore{
		retrying: []*delivery.Task{
			retryingTask(time.Now().UTC().Add(time.Hour)),
			retryingTask(time.Now().UTC().Add(time.Hour)),
		},
	}
	s := New(store, Config{SweepInterval: time.Hour}, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if s.Len() != 2 {
		t.Errorf("expected 2 recovered entries, got %d", s.Len())
	}
}

func TestScheduler_RequeueFailureKeepsTask(t *testing.T) {
	store := &stubStore{failNext: true}
	s := New(store, Config{SweepInterval: 10 * time.Millisecond}, nil)

	task := retryingTask(time.Now().UTC().Add(-time.Second))
	s.Schedule(task)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	// First sweep fails and reschedules; a later sweep succeeds.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(store.requeuedIDs()) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task lost after transient requeue failure")
}

func TestHeapOrdering(t *testing.T) {
	s := New(&stubStore{}, Config{}, nil)

	now := time.Now().UTC()
	for _, offset := range []time.Duration{5, 1, 3, 2, 4} {
		s.Schedule(retryingTask(now.Add(offset * time.Minute)))
	}

	if s.Len() != 5 {
		t.Fatalf("expected 5 entries, got %d", s.Len())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.heap[0].due.Equal(now.Add(time.Minute)) {
		t.Error("heap root should be the earliest due entry")
	}
}
