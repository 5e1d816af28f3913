package roles

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how stale a cached permission set can get when a
// revocation is lost to the read-vs-write race (see Service.GetUserPermissions).
const DefaultCacheTTL = 15 * time.Minute

// UserPermissionsCache caches resolved permission sets per user id.
// Implementations never fail the caller: any backend problem degrades to
// "treat everything as a miss". A hit with an empty slice means "known,
// zero permissions" and is distinct from a miss.
type UserPermissionsCache interface {
	// Get partitions userIDs into cache hits and misses.
	Get(ctx context.Context, userIDs []string) (hits map[string][]string, missing []string)

	// Set inserts or overwrites entries with a fresh expiry.
	Set(ctx context.Context, permissionsByUserID map[string][]string)

	// Revoke removes entries unconditionally; absent ids are fine.
	Revoke(ctx context.Context, userIDs []string)
}

// RedisUserPermissionsCache stores JSON-encoded permission lists in Redis
// under a configurable key prefix, so one Redis instance can be shared
// with unrelated data. Entries expire after ttl when not revoked first.
type RedisUserPermissionsCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedisUserPermissionsCache builds the cache. A zero ttl falls back to
// DefaultCacheTTL.
func NewRedisUserPermissionsCache(client *redis.Client, ttl time.Duration, prefix string, logger *slog.Logger) *RedisUserPermissionsCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if prefix == "" {
		prefix = "dynroles:permissions"
	}
	return &RedisUserPermissionsCache{client: client, ttl: ttl, prefix: prefix, logger: logger}
}

func (c *RedisUserPermissionsCache) key(userID string) string {
	return c.prefix + ":" + userID
}

// Get fetches all requested ids in one MGET. On backend failure every id
// is reported missing.
func (c *RedisUserPermissionsCache) Get(ctx context.Context, userIDs []string) (map[string][]string, []string) {
	userIDs = dedupe(userIDs)
	hits := make(map[string][]string, len(userIDs))
	if len(userIDs) == 0 {
		return hits, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = c.key(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.warn("cache get", err)
		return hits, userIDs
	}

	var missing []string
	for i, raw := range values {
		payload, ok := raw.(string)
		if !ok {
			missing = append(missing, userIDs[i])
			continue
		}
		var permissions []string
		if err := json.Unmarshal([]byte(payload), &permissions); err != nil {
			c.warn("cache decode", err)
			missing = append(missing, userIDs[i])
			continue
		}
		if permissions == nil {
			permissions = []string{}
		}
		hits[userIDs[i]] = permissions
	}
	return hits, missing
}

// Set writes every entry with a fresh TTL in one pipeline.
func (c *RedisUserPermissionsCache) Set(ctx context.Context, permissionsByUserID map[string][]string) {
	if len(permissionsByUserID) == 0 {
		return
	}
	pipe := c.client.Pipeline()
	for userID, permissions := range permissionsByUserID {
		if permissions == nil {
			permissions = []string{}
		}
		payload, err := json.Marshal(permissions)
		if err != nil {
			c.warn("cache encode", err)
			continue
		}
		pipe.Set(ctx, c.key(userID), payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.warn("cache set", err)
	}
}

// Revoke deletes the entries. Idempotent on already-absent ids.
func (c *RedisUserPermissionsCache) Revoke(ctx context.Context, userIDs []string) {
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = c.key(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.warn("cache revoke", err)
	}
}

func (c *RedisUserPermissionsCache) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.Any("error", err))
	}
}

// NoopUserPermissionsCache reports every id as a miss and discards writes.
// It stands in when caching is disabled so the Service never has to
// special-case an absent cache.
type NoopUserPermissionsCache struct{}

// Get reports every requested id as missing.
func (NoopUserPermissionsCache) Get(ctx context.Context, userIDs []string) (map[string][]string, []string) {
	return map[string][]string{}, dedupe(userIDs)
}

// Set discards the entries.
func (NoopUserPermissionsCache) Set(ctx context.Context, permissionsByUserID map[string][]string) {}

// Revoke does nothing.
func (NoopUserPermissionsCache) Revoke(ctx context.Context, userIDs []string) {}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
