package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dataplunge/dataplunge/internal/metrics"
)

// Cache stores serialized report aggregates in Redis. Entries are
// recomputable, so every value carries a TTL and invalidation only has
// to be best-effort.
//
// Keys embed a per-user version counter; invalidating a user is one
// INCR, which orphans that user's old entries until their TTL expires.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prom   *metrics.Metrics
	logger *zap.Logger
}

// NewCache creates a report cache. A nil client disables caching;
// every lookup misses.
func NewCache(client *redis.Client, ttl time.Duration, prom *metrics.Metrics, logger *zap.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, prom: prom, logger: logger}
}

func (c *Cache) versionKey(userID int64) string {
	return fmt.Sprintf("report:ver:%d", userID)
}

func (c *Cache) entryKey(ctx context.Context, report string, userID int64, start, end string) (string, error) {
	ver, err := c.client.Get(ctx, c.versionKey(userID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("report:%s:%d:v%d:%s:%s", report, userID, ver, start, end), nil
}

// Get loads a cached aggregate into dest, reporting whether it was
// found. Cache errors degrade to a miss.
func (c *Cache) Get(ctx context.Context, report string, userID int64, start, end string, dest any) bool {
	if c.client == nil {
		return false
	}
	key, err := c.entryKey(ctx, report, userID, start, end)
	if err == nil {
		var raw string
		raw, err = c.client.Get(ctx, key).Result()
		if err == nil {
			err = json.Unmarshal([]byte(raw), dest)
			if err == nil {
				c.observe(report, true)
				return true
			}
		}
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("report cache read failed", zap.String("report", report), zap.Error(err))
	}
	c.observe(report, false)
	return false
}

// Set stores an aggregate. Failures are logged and swallowed; the
// source of truth is the database.
func (c *Cache) Set(ctx context.Context, report string, userID int64, start, end string, value any) {
	if c.client == nil {
		return
	}
	key, err := c.entryKey(ctx, report, userID, start, end)
	if err == nil {
		var raw []byte
		raw, err = json.Marshal(value)
		if err == nil {
			err = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
	}
	if err != nil {
		c.logger.Warn("report cache write failed", zap.String("report", report), zap.Error(err))
	}
}

// InvalidateUser drops every cached aggregate for the user by bumping
// their version counter.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) error {
	if c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, c.versionKey(userID)).Err()
}

func (c *Cache) observe(report string, hit bool) {
	if c.prom != nil {
		c.prom.RecordCacheLookup(report, hit)
	}
}
