package httpapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"newsoverlay/internal/sentiment"
	"newsoverlay/internal/store"
)

// DefaultCacheTTL is how long a pipeline result is served before reloading.
const DefaultCacheTTL = time.Hour

// Loader produces a fresh pipeline result.
type Loader func(ctx context.Context) (*sentiment.Result, error)

// WarehouseLoader reads every bar and article from wh and runs the pipeline.
func WarehouseLoader(wh store.Warehouse) Loader {
	return func(ctx context.Context) (*sentiment.Result, error) {
		bars, err := wh.ReadBars(ctx, "", civil.Date{}, civil.Date{})
		if err != nil {
			return nil, fmt.Errorf("loading bars: %w", err)
		}
		articles, err := wh.ReadNews(ctx, civil.Date{}, civil.Date{})
		if err != nil {
			return nil, fmt.Errorf("loading news: %w", err)
		}
		return sentiment.Build(bars, articles)
	}
}

// Cache holds the latest pipeline result for a fixed TTL. Concurrent callers
// share one result; at most one load runs at a time.
type Cache struct {
	mu       sync.Mutex
	load     Loader
	ttl      time.Duration
	now      func() time.Time
	result   *sentiment.Result
	loadedAt time.Time
	onLoad   func(error)
}

// NewCache creates a cache around load. A non-positive ttl selects
// DefaultCacheTTL.
func NewCache(load Loader, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{load: load, ttl: ttl, now: time.Now}
}

// OnLoad registers fn to run after every load attempt with its error, nil on
// success. fn runs with the cache locked and must not call back into it.
func (c *Cache) OnLoad(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLoad = fn
}

// Get returns the cached result, reloading it first when it is missing or
// older than the TTL. A failed reload keeps nothing and returns the error.
func (c *Cache) Get(ctx context.Context) (*sentiment.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.result != nil && c.now().Sub(c.loadedAt) < c.ttl {
		return c.result, nil
	}
	return c.reloadLocked(ctx)
}

// Refresh reloads unconditionally.
func (c *Cache) Refresh(ctx context.Context) (*sentiment.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloadLocked(ctx)
}

// LoadedAt returns when the current result was built, or the zero time.
func (c *Cache) LoadedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadedAt
}

func (c *Cache) reloadLocked(ctx context.Context) (*sentiment.Result, error) {
	res, err := c.load(ctx)
	if c.onLoad != nil {
		c.onLoad(err)
	}
	if err != nil {
		c.result = nil
		c.loadedAt = time.Time{}
		return nil, err
	}
	c.result = res
	c.loadedAt = c.now()
	return res, nil
}
