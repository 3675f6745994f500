package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/meridianlabs/ferry"
	"github.com/meridianlabs/ferry/catalog"
	"github.com/meridianlabs/ferry/endpoint"
	"github.com/meridianlabs/ferry/id"
)

// endpointModel wraps the domain endpoint so the secret survives JSON
// round-trips: Endpoint.Secret itself is never serialized.
type endpointModel struct {
	*endpoint.Endpoint
	StoredSecret string `json:"secret"`
}

func (s *Store) setEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := endpointModel{Endpoint: ep, StoredSecret: ep.Secret}
	return s.setEntity(ctx, entityKey(prefixEndpoint, ep.ID.String()), &m)
}

func (s *Store) loadEndpoint(ctx context.Context, epID string) (*endpoint.Endpoint, error) {
	m := endpointModel{Endpoint: new(endpoint.Endpoint)}
	if err := s.getEntity(ctx, entityKey(prefixEndpoint, epID), &m); err != nil {
		return nil, err
	}
	m.Endpoint.Secret = m.StoredSecret

	// Counters live in their own hash; overlay them on the blob.
	counters, err := s.rdb.HGetAll(ctx, hEndpointCounters+epID).Result()
	if err != nil {
		return nil, err
	}
	m.Endpoint.TotalDeliveries = parseCounter(counters["total"])
	m.Endpoint.SuccessfulDeliveries = parseCounter(counters["successful"])
	m.Endpoint.FailedDeliveries = parseCounter(counters["failed"])
	return m.Endpoint, nil
}

func parseCounter(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// CreateEndpoint persists a new endpoint.
func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	if err := s.setEndpoint(ctx, ep); err != nil {
		return fmt.Errorf("ferry/redis: create endpoint: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, zEndpointAll, goredis.Z{
		Score:  scoreFromTime(ep.CreatedAt),
		Member: ep.ID.String(),
	}).Err(); err != nil {
		return fmt.Errorf("ferry/redis: create endpoint index: %w", err)
	}
	return nil
}

// GetEndpoint returns an endpoint by ID.
func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	ep, err := s.loadEndpoint(ctx, epID.String())
	if err != nil {
		if isRedisNil(err) {
			return nil, ferry.ErrEndpointNotFound
		}
		return nil, fmt.Errorf("ferry/redis: get endpoint: %w", err)
	}
	return ep, nil
}

// UpdateEndpoint modifies an existing endpoint.
func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	exists, err := s.rdb.Exists(ctx, entityKey(prefixEndpoint, ep.ID.String())).Result()
	if err != nil {
		return fmt.Errorf("ferry/redis: update endpoint: %w", err)
	}
	if exists == 0 {
		return ferry.ErrEndpointNotFound
	}

	ep.UpdatedAt = now()
	if err := s.setEndpoint(ctx, ep); err != nil {
		return fmt.Errorf("ferry/redis: update endpoint: %w", err)
	}
	return nil
}

// DeleteEndpoint removes an endpoint.
func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	n, err := s.rdb.Del(ctx, entityKey(prefixEndpoint, epID.String())).Result()
	if err != nil {
		return fmt.Errorf("ferry/redis: delete endpoint: %w", err)
	}
	if n == 0 {
		return ferry.ErrEndpointNotFound
	}

	pipe := s.rdb.Pipeline()
	pipe.ZRem(ctx, zEndpointAll, epID.String())
	pipe.Del(ctx, hEndpointCounters+epID.String())
	_, err = pipe.Exec(ctx)
	return err
}

// ListEndpoints returns endpoints for an owner, optionally filtered.
func (s *Store) ListEndpoints(ctx context.Context, ownerID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	ids, err := s.rdb.ZRange(ctx, zEndpointAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: list endpoints: %w", err)
	}

	result := make([]*endpoint.Endpoint, 0, len(ids))
	for _, epID := range ids {
		ep, err := s.loadEndpoint(ctx, epID)
		if err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if ownerID != "" && ep.OwnerID != ownerID {
			continue
		}
		if opts.Status != nil && ep.Status != *opts.Status {
			continue
		}
		result = append(result, ep)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// Resolve finds all active endpoints whose patterns match an event type.
func (s *Store) Resolve(ctx context.Context, eventType string) ([]*endpoint.Endpoint, error) {
	ids, err := s.rdb.ZRange(ctx, zEndpointAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: resolve: %w", err)
	}

	var result []*endpoint.Endpoint
	for _, epID := range ids {
		ep, err := s.loadEndpoint(ctx, epID)
		if err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if !ep.Active() {
			continue
		}
		if catalog.MatchAny(ep.EventPatterns, eventType) {
			result = append(result, ep)
		}
	}
	return result, nil
}

// SetStatus transitions an endpoint's lifecycle status.
func (s *Store) SetStatus(ctx context.Context, epID id.ID, status endpoint.Status) error {
	ep, err := s.GetEndpoint(ctx, epID)
	if err != nil {
		return err
	}
	ep.Status = status
	ep.UpdatedAt = now()
	return s.setEndpoint(ctx, ep)
}

// IncrementCounters atomically adds to the endpoint's rolling counters.
// HINCRBY keeps the update atomic without read-modify-write on the blob.
func (s *Store) IncrementCounters(ctx context.Context, epID id.ID, total, successful, failed int64) error {
	key := hEndpointCounters + epID.String()
	pipe := s.rdb.Pipeline()
	if total != 0 {
		pipe.HIncrBy(ctx, key, "total", total)
	}
	if successful != 0 {
		pipe.HIncrBy(ctx, key, "successful", successful)
	}
	if failed != 0 {
		pipe.HIncrBy(ctx, key, "failed", failed)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("ferry/redis: increment counters: %w", err)
	}
	return nil
}
