// Package scheduler holds retrying delivery tasks in a time-ordered min-heap
// and re-injects them into the worker pipeline when their next attempt time
// is due. The heap is rebuilt from the store on startup, so scheduled
// retries survive a process restart.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meridianlabs/ferry/delivery"
	"github.com/meridianlabs/ferry/id"
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	// RequeueTask moves a retrying task back to queued.
	RequeueTask(ctx context.Context, taskID id.ID) error

	// ListRetryingTasks returns every retrying task for restart recovery.
	ListRetryingTasks(ctx context.Context) ([]*delivery.Task, error)
}

// entry is one scheduled retry.
type entry struct {
	taskID id.ID
	due    time.Time
}

// retryHeap is a min-heap keyed by due time.
type retryHeap []entry

func (h retryHeap) Len() int           { return len(h) }
func (h retryHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }
func (h retryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x any)        { *h = append(*h, x.(entry)) }

func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Config holds scheduler configuration.
type Config struct {
	// SweepInterval is how often due tasks are moved back to the queue.
	SweepInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Second
	}
}

// Scheduler is the retry scheduler. Schedule and the sweep run concurrently;
// the heap never loses entries under concurrent insert and pop.
type Scheduler struct {
	store  Store
	config Config
	logger *slog.Logger

	mu   sync.Mutex
	heap retryHeap

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a retry scheduler.
func New(store Store, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:  store,
		config: cfg,
		logger: logger.With("component", "scheduler"),
	}
	heap.Init(&s.heap)
	return s
}

// Schedule inserts a retrying task, keyed by its next attempt time.
func (s *Scheduler) Schedule(t *delivery.Task) {
	s.mu.Lock()
	heap.Push(&s.heap, entry{taskID: t.ID, due: t.NextAttemptAt})
	s.mu.Unlock()
}

// Len returns the number of scheduled retries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}

// Start reloads retrying tasks from the store and begins the sweep loop.
// Reloading rather than trusting memory gives at-least-once retry delivery
// across restarts; a crash racing a transition may attempt a task once more
// than configured, which is the accepted trade-off.
func (s *Scheduler) Start(ctx context.Context) error {
	tasks, err := s.store.ListRetryingTasks(ctx)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		s.Schedule(t)
	}
	if len(tasks) > 0 {
		s.logger.InfoContext(ctx, "recovered scheduled retries", "count", len(tasks))
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweepLoop(ctx)
	}()
	return nil
}

// Stop halts the sweep loop.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep pops every due entry and requeues its task. A requeue failure puts
// the entry back so the task is not lost.
func (s *Scheduler) sweep(ctx context.Context) {
	now := time.Now().UTC()

	for {
		s.mu.Lock()
		if s.heap.Len() == 0 || s.heap[0].due.After(now) {
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.heap).(entry)
		s.mu.Unlock()

		if err := s.store.RequeueTask(ctx, e.taskID); err != nil {
			s.logger.ErrorContext(ctx, "requeue failed, rescheduling",
				"task_id", e.taskID.String(), "error", err)
			s.mu.Lock()
			heap.Push(&s.heap, entry{taskID: e.taskID, due: now.Add(s.config.SweepInterval)})
			s.mu.Unlock()
			return
		}

		s.logger.DebugContext(ctx, "retry due, task requeued", "task_id", e.taskID.String())
	}
}
