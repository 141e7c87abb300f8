// Package redis provides a Redis-backed implementation of the response
// cache for deployments where cached generations outlive the process.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/kiln/internal/domain"
	"github.com/davidbz/kiln/internal/observability"
)

const (
	keyPrefix = "kiln:cache:"

	// clearScanCount is the batch size for the SCAN pass in Clear.
	clearScanCount = 256
)

// Cache stores normalized response bytes in Redis with a TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a Redis cache adapter. A zero TTL stores entries
// without expiry.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached bytes or domain.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, providerID, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, entryKey(providerID, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, domain.Wrap(domain.CodePersistence, "redis get", err)
	}
	return data, nil
}

// Set stores bytes under the provider-scoped key with the configured TTL.
func (c *Cache) Set(ctx context.Context, providerID, key string, data []byte) error {
	if err := c.client.Set(ctx, entryKey(providerID, key), data, c.ttl).Err(); err != nil {
		return domain.Wrap(domain.CodePersistence, "redis set", err)
	}
	return nil
}

// Clear removes every entry under the cache prefix.
func (c *Cache) Clear(ctx context.Context) error {
	logger := observability.FromContext(ctx)

	var cursor uint64
	var removed int
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", clearScanCount).Result()
		if err != nil {
			return domain.Wrap(domain.CodePersistence, "redis scan", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return domain.Wrap(domain.CodePersistence, "redis del", err)
			}
			removed += len(keys)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	logger.Info("response cache cleared", observability.Int("entries_removed", removed))
	return nil
}

func entryKey(providerID, key string) string {
	return fmt.Sprintf("%s%s/%s", keyPrefix, providerID, key)
}
