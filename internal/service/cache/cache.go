// Package cache is the in-process counterpart of the redis service, used when
// the server runs without Redis.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"iou_ledger/internal/fault"

	gocache "github.com/patrickmn/go-cache"
)

const cleanupInterval = time.Minute

// MemoryCache keeps values in a go-cache with per key expiry. Reads that must
// also write (GetDel, list appends, Drain) hold mu so they are atomic per cache.
type MemoryCache struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func ttlOf(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (c *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	c.cache.Set(key, value, ttlOf(ttl))
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	obj, found := c.cache.Get(key)
	if !found {
		return "", fmt.Errorf("cache get %s: %w", key, fault.ErrNotFound)
	}
	s, ok := obj.(string)
	if !ok {
		return "", fmt.Errorf("cache get %s: %w: holds a list", key, fault.ErrStoreIO)
	}
	return s, nil
}

func (c *MemoryCache) GetDel(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	val, err := c.Get(ctx, key)
	if err != nil {
		return "", err
	}
	c.cache.Delete(key)
	return val, nil
}

func (c *MemoryCache) Del(_ context.Context, key string) error {
	c.cache.Delete(key)
	return nil
}

func (c *MemoryCache) RPush(_ context.Context, key string, values ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var list []string
	if obj, found := c.cache.Get(key); found {
		existing, ok := obj.([]string)
		if !ok {
			return fmt.Errorf("cache rpush %s: %w: holds a string", key, fault.ErrStoreIO)
		}
		list = existing
	}

	next := make([]string, 0, len(list)+len(values))
	next = append(next, list...)
	next = append(next, values...)
	c.cache.Set(key, next, gocache.NoExpiration)
	return nil
}

func (c *MemoryCache) LRange(_ context.Context, key string) ([]string, error) {
	obj, found := c.cache.Get(key)
	if !found {
		return []string{}, nil
	}
	list, ok := obj.([]string)
	if !ok {
		return nil, fmt.Errorf("cache lrange %s: %w: holds a string", key, fault.ErrStoreIO)
	}
	return append([]string(nil), list...), nil
}

// Drain returns the list at key and removes it. It holds mu, so it cannot
// interleave with RPush.
func (c *MemoryCache) Drain(ctx context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vals, err := c.LRange(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Delete(key)
	return vals, nil
}
