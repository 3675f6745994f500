// Package ratelimit implements per-endpoint token bucket rate limiting.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter implements token bucket rate limiting per endpoint.
//
// The bucket capacity equals the endpoint's requests-per-minute limit, so a
// full minute's quota may be consumed as an initial burst; tokens then refill
// continuously at requestsPerMinute/60 per second.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastFill time.Time
	capacity float64 // requests per minute
}

// New creates a new rate limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
	}
}

// Allow checks whether an endpoint is allowed to proceed.
// A requestsPerMinute of 0 means unlimited (always returns true).
func (l *Limiter) Allow(endpointID string, requestsPerMinute int) bool {
	if requestsPerMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getOrCreateBucket(endpointID, float64(requestsPerMinute))
	b.refill()

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until the rate limit allows the request or the context is cancelled.
// A requestsPerMinute of 0 means unlimited (returns immediately).
func (l *Limiter) Wait(ctx context.Context, endpointID string, requestsPerMinute int) error {
	if requestsPerMinute <= 0 {
		return nil
	}

	for {
		if l.Allow(endpointID, requestsPerMinute) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(float64(time.Minute) / float64(requestsPerMinute))):
			// Try again after one token interval.
		}
	}
}

// Reset clears the rate limit state for an endpoint.
func (l *Limiter) Reset(endpointID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, endpointID)
}

func (l *Limiter) getOrCreateBucket(endpointID string, capacity float64) *bucket {
	b, ok := l.buckets[endpointID]
	if !ok {
		b = &bucket{
			tokens:   capacity, // start full
			lastFill: time.Now(),
			capacity: capacity,
		}
		l.buckets[endpointID] = b
	}
	return b
}

func (b *bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * b.capacity / 60
	if b.tokens > b.capacity {
		b.tokens = b.capacity // cap at burst size = full minute quota
	}
	b.lastFill = now
}
