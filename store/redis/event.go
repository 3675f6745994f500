package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/meridianlabs/ferry"
	"github.com/meridianlabs/ferry/event"
	"github.com/meridianlabs/ferry/id"
)

// CreateEvent persists an event. SETNX on the entity key doubles as the
// duplicate-ID check.
func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("ferry/redis: marshal event: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, entityKey(prefixEvent, evt.ID.String()), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("ferry/redis: create event: %w", err)
	}
	if !ok {
		return ferry.ErrDuplicateEvent
	}

	if err := s.rdb.ZAdd(ctx, zEventAll, goredis.Z{
		Score:  scoreFromTime(evt.OccurredAt),
		Member: evt.ID.String(),
	}).Err(); err != nil {
		return fmt.Errorf("ferry/redis: create event index: %w", err)
	}
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	var evt event.Event
	if err := s.getEntity(ctx, entityKey(prefixEvent, evtID.String()), &evt); err != nil {
		if isRedisNil(err) {
			return nil, ferry.ErrEventNotFound
		}
		return nil, fmt.Errorf("ferry/redis: get event: %w", err)
	}
	return &evt, nil
}

// ListEvents returns events, newest first, optionally filtered.
func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	lo, hi := "-inf", "+inf"
	if opts.From != nil {
		lo = fmt.Sprintf("%f", scoreFromTime(*opts.From))
	}
	if opts.To != nil {
		hi = fmt.Sprintf("%f", scoreFromTime(*opts.To))
	}

	ids, err := s.rdb.ZRevRangeByScore(ctx, zEventAll, &goredis.ZRangeBy{
		Min: lo,
		Max: hi,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: list events: %w", err)
	}

	result := make([]*event.Event, 0, len(ids))
	for _, evtID := range ids {
		var evt event.Event
		if err := s.getEntity(ctx, entityKey(prefixEvent, evtID), &evt); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.Type != "" && evt.Type != opts.Type {
			continue
		}
		result = append(result, &evt)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}
