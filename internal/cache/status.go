package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusKeyPrefix namespaces cached request status lookups.
const StatusKeyPrefix = "request:status:%d"

// StatusKey returns the cache key for a request's status.
func StatusKey(id uint) string {
	return fmt.Sprintf(StatusKeyPrefix, id)
}

// StatusCache holds status lookups for requests that have reached a terminal
// state. Pending requests are never cached, so a poll can not observe a stale
// pending status after the decision committed.
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatusCache returns a cache backed by rdb. A nil client or non-positive
// ttl disables caching.
func NewStatusCache(rdb *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: ttl}
}

func (c *StatusCache) enabled() bool {
	return c != nil && c.rdb != nil && c.ttl > 0
}

// Get loads a cached status into dest.
func (c *StatusCache) Get(ctx context.Context, id uint, dest any) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	return GetJSON(ctx, c.rdb, StatusKey(id), dest)
}

// Set stores v as the status of request id.
func (c *StatusCache) Set(ctx context.Context, id uint, v any) error {
	if !c.enabled() {
		return nil
	}
	return SetJSON(ctx, c.rdb, StatusKey(id), v, c.ttl)
}

// Invalidate drops the cached status of request id.
func (c *StatusCache) Invalidate(ctx context.Context, id uint) error {
	if !c.enabled() {
		return nil
	}
	return Invalidate(ctx, c.rdb, StatusKey(id))
}
