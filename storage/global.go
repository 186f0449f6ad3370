package storage

import "sync"

var (
	mu           sync.Mutex
	defaultCache *Cache
)

func SetDefault(c *Cache) {
	mu.Lock()
	defer mu.Unlock()

	defaultCache = c
}

func Current() *Cache {
	mu.Lock()
	defer mu.Unlock()

	return defaultCache
}
