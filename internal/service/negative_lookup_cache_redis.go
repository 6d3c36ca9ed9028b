package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNegativeLookupCache shares the unknown-hash set across
// instances. Looked-up hashes are capability tokens, so only their
// SHA-256 goes into redis.
type RedisNegativeLookupCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisNegativeLookupCache(client redis.UniversalClient, prefix string) *RedisNegativeLookupCache {
	if prefix == "" {
		prefix = "unknown_device"
	}
	return &RedisNegativeLookupCache{client: client, prefix: prefix}
}

func (c *RedisNegativeLookupCache) Contains(ctx context.Context, hash string) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	_, err := c.client.Get(ctx, c.key(hash)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisNegativeLookupCache) Add(ctx context.Context, hash string, ttl time.Duration) error {
	if c.client == nil || ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.key(hash), "1", ttl).Err()
}

func (c *RedisNegativeLookupCache) key(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return fmt.Sprintf("%s:%s", c.prefix, hex.EncodeToString(sum[:]))
}
