package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/meridianlabs/ferry"
	"github.com/meridianlabs/ferry/catalog"
	"github.com/meridianlabs/ferry/id"
)

// RegisterType creates or updates an event type definition (upsert by name).
func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	nameKey := uniqueEventTypeName + et.Definition.Name

	existingID, err := s.rdb.Get(ctx, nameKey).Result()
	if err != nil && !isRedisNil(err) {
		return fmt.Errorf("ferry/redis: register type: %w", err)
	}
	if err == nil {
		// Upsert keeps the original identity.
		parsed, parseErr := id.ParseEventTypeID(existingID)
		if parseErr != nil {
			return fmt.Errorf("ferry/redis: register type index %q: %w", existingID, parseErr)
		}
		et.ID = parsed
		et.UpdatedAt = now()
	}

	if err := s.setEntity(ctx, entityKey(prefixEventType, et.ID.String()), et); err != nil {
		return fmt.Errorf("ferry/redis: register type: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, nameKey, et.ID.String(), 0)
	pipe.ZAdd(ctx, zEventTypeAll, goredis.Z{Score: scoreFromTime(et.CreatedAt), Member: et.ID.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ferry/redis: register type indexes: %w", err)
	}
	return nil
}

// GetType returns an event type by name.
func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	etID, err := s.rdb.Get(ctx, uniqueEventTypeName+name).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, ferry.ErrEventTypeNotFound
		}
		return nil, fmt.Errorf("ferry/redis: get type: %w", err)
	}

	var et catalog.EventType
	if err := s.getEntity(ctx, entityKey(prefixEventType, etID), &et); err != nil {
		if isRedisNil(err) {
			return nil, ferry.ErrEventTypeNotFound
		}
		return nil, fmt.Errorf("ferry/redis: get type: %w", err)
	}
	return &et, nil
}

// GetTypeByID returns an event type by its TypeID.
func (s *Store) GetTypeByID(ctx context.Context, etID id.ID) (*catalog.EventType, error) {
	var et catalog.EventType
	if err := s.getEntity(ctx, entityKey(prefixEventType, etID.String()), &et); err != nil {
		if isRedisNil(err) {
			return nil, ferry.ErrEventTypeNotFound
		}
		return nil, fmt.Errorf("ferry/redis: get type by id: %w", err)
	}
	return &et, nil
}

// ListTypes returns all registered event types, optionally filtered.
func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	ids, err := s.rdb.ZRange(ctx, zEventTypeAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: list types: %w", err)
	}

	result := make([]*catalog.EventType, 0, len(ids))
	for _, etID := range ids {
		var et catalog.EventType
		if err := s.getEntity(ctx, entityKey(prefixEventType, etID), &et); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if !opts.IncludeDeprecated && et.IsDeprecated {
			continue
		}
		if opts.Group != "" && et.Definition.Group != opts.Group {
			continue
		}
		result = append(result, &et)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// DeleteType soft-deletes (deprecates) an event type.
func (s *Store) DeleteType(ctx context.Context, name string) error {
	et, err := s.GetType(ctx, name)
	if err != nil {
		return err
	}
	if et.IsDeprecated {
		return ferry.ErrEventTypeNotFound
	}

	ts := time.Now().UTC()
	et.IsDeprecated = true
	et.DeprecatedAt = &ts
	et.UpdatedAt = ts
	return s.setEntity(ctx, entityKey(prefixEventType, et.ID.String()), et)
}
