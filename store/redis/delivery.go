package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/meridianlabs/ferry"
	"github.com/meridianlabs/ferry/delivery"
	"github.com/meridianlabs/ferry/id"
)

// claimScript atomically claims queued task IDs: membership in the queued
// sorted set is the claim, so popping inside one script means concurrent
// engines never see the same task.
// KEYS[1] = ferry:z:task:queued
// ARGV[1] = limit
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, tonumber(ARGV[1]) - 1)
if #ids == 0 then return {} end
for i, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
end
return ids
`)

func (s *Store) setTask(ctx context.Context, t *delivery.Task) error {
	return s.setEntity(ctx, entityKey(prefixTask, t.ID.String()), t)
}

// indexTask adds a freshly created task to every index. Caller provides the
// pipeline so fan-out batches stay one round trip.
func indexTask(ctx context.Context, pipe goredis.Pipeliner, t *delivery.Task) {
	tid := t.ID.String()
	pipe.Set(ctx, pairKey(t.EndpointID.String(), t.EventID.String()), tid, 0)
	pipe.ZAdd(ctx, zTaskEP+t.EndpointID.String(), goredis.Z{Score: scoreFromTime(t.CreatedAt), Member: tid})
	pipe.ZAdd(ctx, zTaskEvt+t.EventID.String(), goredis.Z{Score: scoreFromTime(t.CreatedAt), Member: tid})
	pipe.SAdd(ctx, stateSetKey(string(t.State)), tid)
	if t.State == delivery.StateQueued {
		pipe.ZAdd(ctx, zTaskQueued, goredis.Z{Score: scoreFromTime(t.CreatedAt), Member: tid})
	}
}

// EnqueueTask creates a queued task.
func (s *Store) EnqueueTask(ctx context.Context, t *delivery.Task) error {
	return s.EnqueueTasks(ctx, []*delivery.Task{t})
}

// EnqueueTasks creates multiple tasks in one pipeline (fan-out).
func (s *Store) EnqueueTasks(ctx context.Context, ts []*delivery.Task) error {
	if len(ts) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, t := range ts {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("ferry/redis: marshal task: %w", err)
		}
		pipe.Set(ctx, entityKey(prefixTask, t.ID.String()), raw, 0)
		indexTask(ctx, pipe, t)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ferry/redis: enqueue tasks: %w", err)
	}
	return nil
}

// Dequeue claims queued tasks ready for attempt.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Task, error) {
	ids, err := claimScript.Run(ctx, s.rdb, []string{zTaskQueued}, limit).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ferry/redis: claim script: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	tasks := make([]*delivery.Task, 0, len(ids))
	for _, tid := range ids {
		var t delivery.Task
		if err := s.getEntity(ctx, entityKey(prefixTask, tid), &t); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, fmt.Errorf("ferry/redis: dequeue get: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, nil
}

// UpdateTask persists a task's state and maintains the state indexes.
func (s *Store) UpdateTask(ctx context.Context, t *delivery.Task) error {
	exists, err := s.rdb.Exists(ctx, entityKey(prefixTask, t.ID.String())).Result()
	if err != nil {
		return fmt.Errorf("ferry/redis: update task: %w", err)
	}
	if exists == 0 {
		return ferry.ErrTaskNotFound
	}

	t.UpdatedAt = now()
	if err := s.setTask(ctx, t); err != nil {
		return fmt.Errorf("ferry/redis: update task: %w", err)
	}

	tid := t.ID.String()
	pipe := s.rdb.Pipeline()
	for _, st := range []delivery.State{
		delivery.StateQueued, delivery.StateSending, delivery.StateSucceeded,
		delivery.StateRetrying, delivery.StateFailed,
	} {
		if st == t.State {
			pipe.SAdd(ctx, stateSetKey(string(st)), tid)
		} else {
			pipe.SRem(ctx, stateSetKey(string(st)), tid)
		}
	}
	if t.State == delivery.StateQueued {
		pipe.ZAdd(ctx, zTaskQueued, goredis.Z{Score: scoreFromTime(t.UpdatedAt), Member: tid})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ferry/redis: update task indexes: %w", err)
	}
	return nil
}

// ReleaseTask returns a claimed task to the queue unchanged.
func (s *Store) ReleaseTask(ctx context.Context, taskID id.ID) error {
	var t delivery.Task
	if err := s.getEntity(ctx, entityKey(prefixTask, taskID.String()), &t); err != nil {
		if isRedisNil(err) {
			return ferry.ErrTaskNotFound
		}
		return fmt.Errorf("ferry/redis: release task: %w", err)
	}

	return s.rdb.ZAdd(ctx, zTaskQueued, goredis.Z{
		Score:  scoreFromTime(t.CreatedAt),
		Member: taskID.String(),
	}).Err()
}

// RequeueTask moves a retrying task back to queued. Idempotent: a task no
// longer retrying is left alone.
func (s *Store) RequeueTask(ctx context.Context, taskID id.ID) error {
	var t delivery.Task
	if err := s.getEntity(ctx, entityKey(prefixTask, taskID.String()), &t); err != nil {
		if isRedisNil(err) {
			return ferry.ErrTaskNotFound
		}
		return fmt.Errorf("ferry/redis: requeue task: %w", err)
	}
	if t.State != delivery.StateRetrying {
		return nil
	}

	t.State = delivery.StateQueued
	return s.UpdateTask(ctx, &t)
}

// GetTask returns a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.ID) (*delivery.Task, error) {
	var t delivery.Task
	if err := s.getEntity(ctx, entityKey(prefixTask, taskID.String()), &t); err != nil {
		if isRedisNil(err) {
			return nil, ferry.ErrTaskNotFound
		}
		return nil, fmt.Errorf("ferry/redis: get task: %w", err)
	}
	return &t, nil
}

// TaskForEvent returns the task for an (endpoint, event) pair.
func (s *Store) TaskForEvent(ctx context.Context, epID, evtID id.ID) (*delivery.Task, error) {
	tid, err := s.rdb.Get(ctx, pairKey(epID.String(), evtID.String())).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, ferry.ErrTaskNotFound
		}
		return nil, fmt.Errorf("ferry/redis: task for event: %w", err)
	}

	taskID, err := id.ParseTaskID(tid)
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: task pair index %q: %w", tid, err)
	}
	return s.GetTask(ctx, taskID)
}

// ListTasksByEndpoint returns delivery history for an endpoint, newest first.
func (s *Store) ListTasksByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Task, error) {
	ids, err := s.rdb.ZRevRange(ctx, zTaskEP+epID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: list tasks by endpoint: %w", err)
	}

	result := make([]*delivery.Task, 0, len(ids))
	for _, tid := range ids {
		var t delivery.Task
		if err := s.getEntity(ctx, entityKey(prefixTask, tid), &t); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.State != nil && t.State != *opts.State {
			continue
		}
		result = append(result, &t)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListTasksByEvent returns all tasks spawned by one event.
func (s *Store) ListTasksByEvent(ctx context.Context, evtID id.ID) ([]*delivery.Task, error) {
	ids, err := s.rdb.ZRange(ctx, zTaskEvt+evtID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: list tasks by event: %w", err)
	}

	result := make([]*delivery.Task, 0, len(ids))
	for _, tid := range ids {
		var t delivery.Task
		if err := s.getEntity(ctx, entityKey(prefixTask, tid), &t); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		result = append(result, &t)
	}
	return result, nil
}

// ListRetryingTasks returns every task in the retrying state.
func (s *Store) ListRetryingTasks(ctx context.Context) ([]*delivery.Task, error) {
	ids, err := s.rdb.SMembers(ctx, stateSetKey(string(delivery.StateRetrying))).Result()
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: list retrying: %w", err)
	}

	result := make([]*delivery.Task, 0, len(ids))
	for _, tid := range ids {
		var t delivery.Task
		if err := s.getEntity(ctx, entityKey(prefixTask, tid), &t); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		result = append(result, &t)
	}
	return result, nil
}

// CountTasksByState returns the number of tasks in the given state.
func (s *Store) CountTasksByState(ctx context.Context, state delivery.State) (int64, error) {
	n, err := s.rdb.SCard(ctx, stateSetKey(string(state))).Result()
	if err != nil {
		return 0, fmt.Errorf("ferry/redis: count tasks: %w", err)
	}
	return n, nil
}
