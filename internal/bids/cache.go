package bids

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/desertthunder/bidshelf/internal/metrics"
	"github.com/desertthunder/bidshelf/internal/shared"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of parsed datasets kept when no size is configured.
const DefaultCacheSize = 12

// LoadFunc parses the dataset at folder.
type LoadFunc func(ctx context.Context, folder string) (*Dataset, error)

// Cache is a bounded LRU of parsed datasets keyed by folder.
//
// Concurrent misses for the same folder share one parse. Failed parses are not cached.
type Cache struct {
	entries *lru.Cache[string, *Dataset]
	group   singleflight.Group
	load    LoadFunc
	metrics *metrics.Metrics
}

// NewCache creates a Cache holding up to size datasets. A nil load uses [Load].
func NewCache(size int, load LoadFunc, m *metrics.Metrics) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if load == nil {
		load = func(_ context.Context, folder string) (*Dataset, error) { return Load(folder) }
	}

	entries, err := lru.New[string, *Dataset](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset cache: %w", err)
	}
	return &Cache{entries: entries, load: load, metrics: m}, nil
}

// GetOrLoad returns the cached dataset for folder, parsing it on a miss.
func (c *Cache) GetOrLoad(ctx context.Context, folder string) (*Dataset, error) {
	if folder == "" {
		c.metrics.CacheLookup(metrics.CacheError)
		return nil, fmt.Errorf("%w: dataset has no folder", shared.ErrParse)
	}
	key := filepath.Clean(folder)

	if d, ok := c.entries.Get(key); ok {
		c.metrics.CacheLookup(metrics.CacheHit)
		return d, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if d, ok := c.entries.Get(key); ok {
			return d, nil
		}
		// detached so one caller giving up does not fail the others sharing this parse
		d, err := c.load(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, d)
		return d, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.metrics.CacheLookup(metrics.CacheError)
			if !errors.Is(res.Err, shared.ErrParse) {
				return nil, fmt.Errorf("%w: %v", shared.ErrParse, res.Err)
			}
			return nil, res.Err
		}
		c.metrics.CacheLookup(metrics.CacheMiss)
		return res.Val.(*Dataset), nil
	}
}

// Len reports how many datasets are cached.
func (c *Cache) Len() int { return c.entries.Len() }

// Forget drops folder from the cache so the next read parses it again.
func (c *Cache) Forget(folder string) {
	c.entries.Remove(filepath.Clean(folder))
}
