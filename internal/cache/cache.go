// Package cache holds the read-through cache for dashboard aggregates.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON-encodable dashboard results.
type Cache interface {
	// Get decodes the cached value into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
}

const summaryKey = "summary"

// EngagementKey is the key for one campaign's engagement totals.
func EngagementKey(campaignID string) string {
	return "engagement:" + campaignID
}

// BreakdownKey is the key for one campaign's category breakdown.
func BreakdownKey(campaignID string) string {
	return "categories:" + campaignID
}

// SummaryKey is the key for the all-campaigns summary.
func SummaryKey() string {
	return summaryKey
}

// CampaignKeys lists every key that depends on the campaign's posts,
// including the global summary.
func CampaignKeys(campaignIDs ...string) []string {
	keys := make([]string, 0, 2*len(campaignIDs)+1)
	seen := make(map[string]bool, len(campaignIDs))
	for _, id := range campaignIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, EngagementKey(id), BreakdownKey(id))
	}
	return append(keys, summaryKey)
}

// RedisCache stores values as JSON strings with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(client *redis.Client, ttl time.Duration, prefix string) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache key %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache key %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string, any) (bool, error) { return false, nil }
func (Noop) Set(context.Context, string, any) error { return nil }
func (Noop) Delete(context.Context, ...string) error { return nil }
