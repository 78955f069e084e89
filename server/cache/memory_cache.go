package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryCache is an in-process Cache with a size bound and sliding expiry:
// every Get renews the entry's TTL. When full, the least recently used
// entry is evicted.
type MemoryCache[V any] struct {
	items   map[string]*CacheItem[V]
	mutex   sync.Mutex
	maxSize int
	ttl     time.Duration
	logger  *zap.Logger
	onEvict func(key string, value V)
	cleanup *time.Ticker
	stopCh  chan struct{}
	once    sync.Once

	hits    int64
	misses  int64
	evicted int64
	expired int64
}

var _ Cache[any] = (*MemoryCache[any])(nil)

type CacheItem[V any] struct {
	Value       V
	TTL         time.Duration
	ExpiresAt   time.Time
	LastUsed    time.Time
	AccessCount int64
}

func NewMemoryCache[V any](maxSize int, ttl time.Duration, logger *zap.Logger) *MemoryCache[V] {
	cache := &MemoryCache[V]{
		items:   make(map[string]*CacheItem[V]),
		maxSize: maxSize,
		ttl:     ttl,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	cache.cleanup = time.NewTicker(cleanupInterval(ttl))
	go cache.cleanupExpired()

	return cache
}

func cleanupInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval < time.Second {
		return time.Second
	}
	if interval > time.Minute {
		return time.Minute
	}
	return interval
}

// OnEvict registers fn to be called for entries removed by expiry or LRU
// eviction. It is not called for Delete. fn runs without the cache lock
// held and may use the cache.
func (c *MemoryCache[V]) OnEvict(fn func(key string, value V)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onEvict = fn
}

func (c *MemoryCache[V]) Set(key string, value V) {
	c.setWithTTL(key, value, c.ttl)
}

func (c *MemoryCache[V]) setWithTTL(key string, value V, ttl time.Duration) {
	c.mutex.Lock()

	var victim *CacheItem[V]
	var victimKey string
	if _, exists := c.items[key]; !exists && c.maxSize > 0 && len(c.items) >= c.maxSize {
		victimKey, victim = c.evictLRU()
	}

	now := time.Now()
	c.items[key] = &CacheItem[V]{
		Value:       value,
		TTL:         ttl,
		ExpiresAt:   now.Add(ttl),
		LastUsed:    now,
		AccessCount: 1,
	}
	onEvict := c.onEvict
	c.mutex.Unlock()

	if victim != nil && onEvict != nil {
		onEvict(victimKey, victim.Value)
	}
}

func (c *MemoryCache[V]) Get(key string) (V, error) {
	c.mutex.Lock()
	item, exists := c.items[key]
	if !exists {
		c.misses++
		c.mutex.Unlock()
		var zero V
		return zero, ErrCacheMiss
	}

	now := time.Now()
	if now.After(item.ExpiresAt) {
		delete(c.items, key)
		c.misses++
		c.expired++
		onEvict := c.onEvict
		c.mutex.Unlock()

		if onEvict != nil {
			onEvict(key, item.Value)
		}
		var zero V
		return zero, ErrCacheMiss
	}

	item.LastUsed = now
	item.ExpiresAt = now.Add(item.TTL)
	item.AccessCount++
	c.hits++
	value := item.Value
	c.mutex.Unlock()

	return value, nil
}

func (c *MemoryCache[V]) Delete(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, exists := c.items[key]
	delete(c.items, key)
	return exists
}

func (c *MemoryCache[V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.items)
}

func (c *MemoryCache[V]) GetStats() *CacheStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return &CacheStats{
		Items:   len(c.items),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		Evicted: c.evicted,
		Expired: c.expired,
	}
}

func (c *MemoryCache[V]) Close() error {
	c.once.Do(func() {
		c.cleanup.Stop()
		close(c.stopCh)
	})
	return nil
}

// evictLRU removes the least recently used entry. The caller holds the lock.
func (c *MemoryCache[V]) evictLRU() (string, *CacheItem[V]) {
	var oldestKey string
	var oldest *CacheItem[V]

	for key, item := range c.items {
		if oldest == nil || item.LastUsed.Before(oldest.LastUsed) {
			oldestKey = key
			oldest = item
		}
	}

	if oldest != nil {
		delete(c.items, oldestKey)
		c.evicted++
	}
	return oldestKey, oldest
}

// DeleteExpired drops every expired entry and returns how many it removed.
func (c *MemoryCache[V]) DeleteExpired() int {
	c.mutex.Lock()
	now := time.Now()
	removed := make(map[string]V)
	for key, item := range c.items {
		if now.After(item.ExpiresAt) {
			removed[key] = item.Value
			delete(c.items, key)
		}
	}
	c.expired += int64(len(removed))
	onEvict := c.onEvict
	c.mutex.Unlock()

	if onEvict != nil {
		for key, value := range removed {
			onEvict(key, value)
		}
	}
	return len(removed)
}

func (c *MemoryCache[V]) cleanupExpired() {
	for {
		select {
		case <-c.cleanup.C:
			if n := c.DeleteExpired(); n > 0 {
				c.logger.Debug("Expired cache entries removed", zap.Int("count", n))
			}
		case <-c.stopCh:
			return
		}
	}
}
