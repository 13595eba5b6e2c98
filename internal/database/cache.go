package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Cache key prefixes
	CacheKeyAggregate   = "crewtrack:aggregate:"
	CacheKeyLeaderboard = "crewtrack:leaderboard:"
	CacheKeyRoleRanks   = "crewtrack:directory:ranks:"
)

// cacheEnvelope wraps a cached payload with its write timestamp so readers
// can distinguish fresh from stale entries.
type cacheEnvelope struct {
	Data     json.RawMessage `json:"data"`
	CachedAt time.Time       `json:"cached_at"`
}

// ActivityCache is a stale-while-revalidate read cache for aggregate and
// leaderboard queries. Entries younger than TTL are fresh; entries younger
// than TTL+StaleWindow are served stale while the caller refreshes in the
// background. It is non-authoritative and must never feed reset decisions.
type ActivityCache struct {
	client      *redis.Client
	ttl         time.Duration
	staleWindow time.Duration
}

func NewActivityCache(client *redis.Client, ttl, staleWindow time.Duration) *ActivityCache {
	return &ActivityCache{
		client:      client,
		ttl:         ttl,
		staleWindow: staleWindow,
	}
}

// Get loads a cached value into dest. The second return is true when the
// entry is stale and the caller should refresh it.
func (c *ActivityCache) Get(ctx context.Context, key string, dest interface{}) (hit bool, stale bool) {
	if c == nil || c.client == nil {
		return false, false
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false, false
	}

	var envelope cacheEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return false, false
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return false, false
	}

	age := time.Since(envelope.CachedAt)
	if age > c.ttl+c.staleWindow {
		return false, false
	}
	return true, age > c.ttl
}

// Set stores a value; the Redis expiry covers the stale window so stale
// reads remain possible until the entry is useless.
func (c *ActivityCache) Set(ctx context.Context, key string, value interface{}) error {
	if c == nil || c.client == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	envelope := cacheEnvelope{Data: data, CachedAt: time.Now().UTC()}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl+c.staleWindow).Err()
}

// Invalidate removes keys, e.g. after a reset shifts the period boundary
func (c *ActivityCache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.client == nil || len(keys) == 0 {
		return
	}
	c.client.Del(ctx, keys...)
}

// CacheGet retrieves a plain value from Redis and unmarshals it into dest
func CacheGet(key string, dest interface{}) error {
	ctx := context.Background()
	data, err := Redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// CacheSet stores a plain value in Redis with TTL
func CacheSet(key string, value interface{}, ttl time.Duration) error {
	ctx := context.Background()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return Redis.Set(ctx, key, data, ttl).Err()
}
