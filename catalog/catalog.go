// Package catalog manages the dynamic registry of webhook event types and
// the subscription pattern matcher used by the event router.
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meridianlabs/ferry/id"
	"github.com/meridianlabs/ferry/internal/entity"
)

// Catalog is the in-memory cached service for managing webhook event types.
type Catalog struct {
	store    Store
	cache    map[string]cacheEntry
	cacheTTL time.Duration
	mu       sync.RWMutex
	logger   *slog.Logger
}

// cacheEntry tracks when an event type was loaded so staleness is judged
// per entry, not for the cache as a whole.
type cacheEntry struct {
	et       *EventType
	loadedAt time.Time
}

// Config configures the catalog service.
type Config struct {
	CacheTTL time.Duration
}

// NewCatalog creates a new Catalog backed by the given store.
func NewCatalog(store Store, cfg Config, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:    store,
		cache:    make(map[string]cacheEntry),
		cacheTTL: cfg.CacheTTL,
		logger:   logger.With("component", "catalog"),
	}
}

// RegisterType registers or updates an event type definition.
func (c *Catalog) RegisterType(ctx context.Context, def Definition, opts ...RegisterOption) (*EventType, error) {
	ro := registerOptions{}
	for _, o := range opts {
		o(&ro)
	}

	et := &EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: def,
		Metadata:   ro.metadata,
	}

	if err := c.store.RegisterType(ctx, et); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[def.Name] = cacheEntry{et: et, loadedAt: time.Now()}
	c.mu.Unlock()

	return et, nil
}

// RegisterOption configures RegisterType behavior.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	metadata map[string]string
}

// WithMetadata sets metadata on a registered event type.
func WithMetadata(m map[string]string) RegisterOption {
	return func(o *registerOptions) { o.metadata = m }
}

// GetType returns an event type by name, using the cache when available.
func (c *Catalog) GetType(ctx context.Context, name string) (*EventType, error) {
	c.mu.RLock()
	if ce, ok := c.cache[name]; ok && c.fresh(ce) {
		c.mu.RUnlock()
		return ce.et, nil
	}
	c.mu.RUnlock()

	et, err := c.store.GetType(ctx, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[name] = cacheEntry{et: et, loadedAt: time.Now()}
	c.mu.Unlock()

	return et, nil
}

// ListTypes returns all registered event types.
func (c *Catalog) ListTypes(ctx context.Context, opts ListOpts) ([]*EventType, error) {
	return c.store.ListTypes(ctx, opts)
}

// DeleteType soft-deletes (deprecates) an event type and removes it from cache.
func (c *Catalog) DeleteType(ctx context.Context, name string) error {
	if err := c.store.DeleteType(ctx, name); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.cache, name)
	c.mu.Unlock()

	return nil
}

// InvalidateCache clears the in-memory cache, forcing fresh reads from the store.
func (c *Catalog) InvalidateCache() {
	c.mu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// fresh reports whether a cache entry is still within the TTL. A zero TTL
// means entries never expire.
func (c *Catalog) fresh(ce cacheEntry) bool {
	if c.cacheTTL == 0 {
		return true
	}
	return time.Since(ce.loadedAt) <= c.cacheTTL
}

// WarmCache preloads the cache from the store.
func (c *Catalog) WarmCache(ctx context.Context) error {
	types, err := c.store.ListTypes(ctx, ListOpts{IncludeDeprecated: false})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]cacheEntry, len(types))
	now := time.Now()
	for _, et := range types {
		c.cache[et.Definition.Name] = cacheEntry{et: et, loadedAt: now}
	}
	return nil
}
