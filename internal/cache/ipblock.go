package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// IPBlockKeyPrefix namespaces cached blacklist lookups.
	IPBlockKeyPrefix = "ipblock:"
	// IPBlockTTL bounds how long a lookup result is reused.
	IPBlockTTL = time.Minute
)

// IPBlockKey returns the cache key for an address.
func IPBlockKey(ip string) string {
	return IPBlockKeyPrefix + ip
}

// IPBlockCache memoizes blacklist lookups so the member endpoints do not hit
// the database on every request.
type IPBlockCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewIPBlockCache returns a cache backed by rdb; nil disables it.
func NewIPBlockCache(rdb *redis.Client) *IPBlockCache {
	return &IPBlockCache{rdb: rdb, ttl: IPBlockTTL}
}

// Blocked returns the cached verdict for ip, calling lookup on a miss.
// Redis failures fall through to lookup.
func (c *IPBlockCache) Blocked(ctx context.Context, ip string, lookup func(context.Context, string) (bool, error)) (bool, error) {
	if c == nil || c.rdb == nil {
		return lookup(ctx, ip)
	}

	val, err := c.rdb.Get(ctx, IPBlockKey(ip)).Result()
	if err == nil {
		return val == "1", nil
	}

	blocked, lerr := lookup(ctx, ip)
	if lerr != nil {
		return false, lerr
	}
	if errors.Is(err, redis.Nil) {
		flag := "0"
		if blocked {
			flag = "1"
		}
		_ = c.rdb.Set(ctx, IPBlockKey(ip), flag, c.ttl).Err()
	}
	return blocked, nil
}

// Forget drops the cached verdict for ip.
func (c *IPBlockCache) Forget(ctx context.Context, ip string) error {
	if c == nil {
		return nil
	}
	return Invalidate(ctx, c.rdb, IPBlockKey(ip))
}
