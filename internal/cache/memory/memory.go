// Package memory provides an in-process implementation of the response
// cache, suitable for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/davidbz/kiln/internal/domain"
)

// Cache is a concurrency-safe in-memory byte store.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewCache creates an empty in-memory cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string][]byte),
	}
}

// Get returns the cached bytes or domain.ErrCacheMiss.
func (c *Cache) Get(_ context.Context, providerID, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, exists := c.entries[entryKey(providerID, key)]
	if !exists {
		return nil, domain.ErrCacheMiss
	}

	// Copy so callers cannot mutate the stored value.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Set stores bytes under the provider-scoped key.
func (c *Cache) Set(_ context.Context, providerID, key string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entryKey(providerID, key)] = stored
	return nil
}

// Clear removes every cached entry.
func (c *Cache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]byte)
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func entryKey(providerID, key string) string {
	return providerID + "/" + key
}
