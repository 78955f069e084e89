package cache

import "errors"

var ErrCacheMiss = errors.New("cache miss")

// Cache is a keyed store of live values with per-entry expiry.
type Cache[V any] interface {
	Set(key string, value V)

	Get(key string) (V, error)

	Delete(key string) bool

	Len() int

	GetStats() *CacheStats

	Close() error
}

type CacheStats struct {
	Items   int   `json:"items"`
	MaxSize int   `json:"max_size"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Evicted int64 `json:"evicted"`
	Expired int64 `json:"expired"`
}
