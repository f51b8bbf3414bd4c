package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/zatekoja/reviewgate/backend/internal/domain/providers"
)

const sweepThreshold = 1024

// MemoryAdapter implements CacheProvider in process. It stands in for Redis
// on single-instance deployments and in tests.
//
// Ristretto's admission policy may refuse or later evict any entry, so only
// keys under the evictable prefixes go there. Every other key, such as visitor
// session state, lives in an exact TTL map and stays until it expires or is
// deleted.
type MemoryAdapter struct {
	cache     *ristretto.Cache[string, []byte]
	evictable []string

	mu       sync.Mutex
	entries  map[string]entry
	counters map[string]counter
	now      func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

type counter struct {
	value     int64
	expiresAt time.Time
}

// NewMemoryAdapter creates an in-process cache. Keys starting with one of
// evictable share a bounded cache of at most maxBytes; the rest are kept
// exactly until their TTL passes.
func NewMemoryAdapter(maxBytes int64, evictable ...string) (*MemoryAdapter, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 100_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryAdapter{
		cache:     c,
		evictable: evictable,
		entries:   make(map[string]entry),
		counters:  make(map[string]counter),
		now:       time.Now,
	}, nil
}

func (a *MemoryAdapter) isEvictable(key string) bool {
	for _, prefix := range a.evictable {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Get retrieves a value from cache
func (a *MemoryAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	if a.isEvictable(key) {
		value, ok := a.cache.Get(key)
		if !ok {
			return nil, providers.ErrCacheMiss
		}
		return value, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[key]
	if !ok || a.expiredLocked(e.expiresAt) {
		return nil, providers.ErrCacheMiss
	}
	return e.value, nil
}

// Set stores a value with expiration. A zero expiration never expires.
// Evictable writes are best effort and may be dropped by the cache.
func (a *MemoryAdapter) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	ttl := time.Duration(expirationSeconds) * time.Second
	if a.isEvictable(key) {
		if !a.cache.SetWithTTL(key, value, int64(len(value))+int64(len(key)), ttl) {
			return fmt.Errorf("failed to set in cache: write for %q was dropped", key)
		}
		a.cache.Wait()
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	a.entries[key] = e

	if len(a.entries) > sweepThreshold {
		for k, v := range a.entries {
			if a.expiredLocked(v.expiresAt) {
				delete(a.entries, k)
			}
		}
	}
	return nil
}

// Delete removes a value from cache
func (a *MemoryAdapter) Delete(ctx context.Context, key string) error {
	a.cache.Del(key)
	a.mu.Lock()
	delete(a.entries, key)
	delete(a.counters, key)
	a.mu.Unlock()
	return nil
}

// Exists checks if a key exists in cache
func (a *MemoryAdapter) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := a.Get(ctx, key); err == nil {
		return true, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.counters[key]
	return ok && a.now().Before(c.expiresAt), nil
}

// Incr increments a counter, setting its expiration when it is created
func (a *MemoryAdapter) Incr(ctx context.Context, key string, expirationSeconds int) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	c, ok := a.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = counter{expiresAt: now.Add(time.Duration(expirationSeconds) * time.Second)}
	}
	c.value++
	a.counters[key] = c

	if len(a.counters) > sweepThreshold {
		for k, v := range a.counters {
			if !now.Before(v.expiresAt) {
				delete(a.counters, k)
			}
		}
	}
	return c.value, nil
}

// Close releases the cache's background goroutines
func (a *MemoryAdapter) Close() {
	a.cache.Close()
}

func (a *MemoryAdapter) expiredLocked(expiresAt time.Time) bool {
	return !expiresAt.IsZero() && !a.now().Before(expiresAt)
}
