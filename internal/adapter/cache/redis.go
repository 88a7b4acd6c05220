// Package cache stores computed schedules in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"go.ngs.io/prayer-api/internal/domain"
)

// keyPrefix is bumped whenever the cached value layout changes.
const keyPrefix = "prayer:schedule:v1"

// ScheduleCache is the interface for caching built schedules.
type ScheduleCache interface {
	Get(ctx context.Context, key string) (domain.DailySchedule, bool, error)
	Set(ctx context.Context, key string, s domain.DailySchedule) error
}

// ScheduleKey identifies one schedule. Coordinates are rounded to four
// decimals (about 11 m), far below the resolution of a one-second boundary.
func ScheduleKey(c domain.GeoCoordinate, date time.Time, p domain.CalculationProfile, adj domain.TimeAdjustments) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%.4f,%.4f:%s:%s", keyPrefix, c.Latitude, c.Longitude, date.Format("2006-01-02"), p.Fingerprint())
	fmt.Fprintf(&b, ":%d,%d,%d,%d,%d,%d", adj.Fajr, adj.Sunrise, adj.Dhuhr, adj.Asr, adj.Maghrib, adj.Isha)
	return b.String()
}

// RedisCache is a ScheduleCache backed by go-redis.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects lazily to the Redis server at address.
func NewRedisCache(address, username, password string, ttl time.Duration) *RedisCache {
	return NewRedisCacheWithClient(redis.NewClient(&redis.Options{
		Addr:     address,
		Username: username,
		Password: password,
		DB:       0,
	}), ttl)
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Get returns the cached schedule for key. A miss is not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (domain.DailySchedule, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.DailySchedule{}, false, nil
	}
	if err != nil {
		return domain.DailySchedule{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var s domain.DailySchedule
	if err := json.Unmarshal(b, &s); err != nil {
		return domain.DailySchedule{}, false, fmt.Errorf("decode cached schedule %s: %w", key, err)
	}
	return s, true, nil
}

// Set stores s under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, s domain.DailySchedule) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

var _ ScheduleCache = (*RedisCache)(nil)
