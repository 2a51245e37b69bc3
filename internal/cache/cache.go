// Package cache provides TTL-based caching for market lookups that do not
// need to be fresh on every call (reference rate, token symbols).
package cache

import (
	"sync"
	"time"
)

// Entry represents a cached value with expiration
type Entry[T any] struct {
	Value     T
	ExpiresAt time.Time
}

// IsExpired returns true if the entry has expired
func (e *Entry[T]) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Cache is a generic TTL-based cache
type Cache[T any] struct {
	data map[string]*Entry[T]
	mu   sync.RWMutex
	ttl  time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a new cache with the specified TTL.
// Call Close to stop the background sweeper.
func New[T any](ttl time.Duration) *Cache[T] {
	c := &Cache[T]{
		data:   make(map[string]*Entry[T]),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
	go c.cleanup(time.Minute)
	return c
}

// Get retrieves a value from the cache
// Returns the value and true if found and not expired, zero value and false otherwise
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists || entry.IsExpired() {
		var zero T
		return zero, false
	}
	return entry.Value, true
}

// Set stores a value in the cache with the default TTL
func (c *Cache[T]) Set(key string, value T) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL
func (c *Cache[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = &Entry[T]{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
	}
}

// Close stops the background sweeper. Safe to call more than once.
func (c *Cache[T]) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Cache[T]) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache[T]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.data {
		if now.After(entry.ExpiresAt) {
			delete(c.data, key)
		}
	}
}

// RateCache holds USD reference rates keyed by asset id.
// Short TTL: the fee conversion tolerates a slightly stale rate.
type RateCache struct {
	*Cache[float64]
}

// NewRateCache creates a cache for reference rates
func NewRateCache(ttl time.Duration) *RateCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RateCache{Cache: New[float64](ttl)}
}

// SymbolCache remembers token tickers by mint so a failed lookup can still
// show a name. Symbols never change for a mint, so the TTL is long.
type SymbolCache struct {
	*Cache[string]
}

// NewSymbolCache creates a cache for token symbols (1 hour TTL)
func NewSymbolCache() *SymbolCache {
	return &SymbolCache{Cache: New[string](time.Hour)}
}
