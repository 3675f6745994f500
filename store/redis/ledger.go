package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/meridianlabs/ferry/id"
	"github.com/meridianlabs/ferry/ledger"
)

// AppendAttempt durably writes one attempt record.
func (s *Store) AppendAttempt(ctx context.Context, rec *ledger.AttemptRecord) error {
	if err := s.setEntity(ctx, entityKey(prefixAttempt, rec.ID.String()), rec); err != nil {
		return fmt.Errorf("ferry/redis: append attempt: %w", err)
	}

	rid := rec.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zAttemptAll, goredis.Z{Score: scoreFromTime(rec.Timestamp), Member: rid})
	pipe.ZAdd(ctx, zAttemptEP+rec.EndpointID.String(), goredis.Z{Score: scoreFromTime(rec.Timestamp), Member: rid})
	pipe.ZAdd(ctx, zAttemptTask+rec.TaskID.String(), goredis.Z{Score: float64(rec.AttemptNumber), Member: rid})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ferry/redis: append attempt indexes: %w", err)
	}
	return nil
}

// ListAttemptsByEndpoint returns records for an endpoint, newest first.
func (s *Store) ListAttemptsByEndpoint(ctx context.Context, epID id.ID, opts ledger.ListOpts) ([]*ledger.AttemptRecord, error) {
	ids, err := s.rdb.ZRevRange(ctx, zAttemptEP+epID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: list attempts by endpoint: %w", err)
	}

	result := make([]*ledger.AttemptRecord, 0, len(ids))
	for _, rid := range ids {
		var rec ledger.AttemptRecord
		if err := s.getEntity(ctx, entityKey(prefixAttempt, rid), &rec); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		result = append(result, &rec)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListAttemptsByTask returns all records for one task, oldest first.
func (s *Store) ListAttemptsByTask(ctx context.Context, taskID id.ID) ([]*ledger.AttemptRecord, error) {
	ids, err := s.rdb.ZRange(ctx, zAttemptTask+taskID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: list attempts by task: %w", err)
	}

	result := make([]*ledger.AttemptRecord, 0, len(ids))
	for _, rid := range ids {
		var rec ledger.AttemptRecord
		if err := s.getEntity(ctx, entityKey(prefixAttempt, rid), &rec); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		result = append(result, &rec)
	}
	return result, nil
}

// PurgeAttemptsBefore removes records older than the cutoff.
func (s *Store) PurgeAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	hi := fmt.Sprintf("(%f", scoreFromTime(cutoff)) // exclusive upper bound
	ids, err := s.rdb.ZRangeByScore(ctx, zAttemptAll, &goredis.ZRangeBy{
		Min: "-inf",
		Max: hi,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("ferry/redis: purge scan: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var removed int64
	for _, rid := range ids {
		var rec ledger.AttemptRecord
		if err := s.getEntity(ctx, entityKey(prefixAttempt, rid), &rec); err != nil {
			if isRedisNil(err) {
				s.rdb.ZRem(ctx, zAttemptAll, rid)
				continue
			}
			return removed, err
		}

		pipe := s.rdb.Pipeline()
		pipe.Del(ctx, entityKey(prefixAttempt, rid))
		pipe.ZRem(ctx, zAttemptAll, rid)
		pipe.ZRem(ctx, zAttemptEP+rec.EndpointID.String(), rid)
		pipe.ZRem(ctx, zAttemptTask+rec.TaskID.String(), rid)
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, fmt.Errorf("ferry/redis: purge delete: %w", err)
		}
		removed++
	}
	return removed, nil
}
