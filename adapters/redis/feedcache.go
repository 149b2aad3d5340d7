package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"runstreak/core"
	"runstreak/engine"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// DefaultTTL is how long cached day activity lists live. Past days are
// immutable on the provider side in practice, but a bounded TTL keeps a
// late-synced watch upload from being invisible forever.
const DefaultTTL = 6 * time.Hour

// CachedFeed decorates an activity feed with a Redis cache.
// Data structure:
// - feed:{user_id}:day:{yyyy-mm-dd} -> JSON array of activities
//
// The current day is never served from cache: today's total changes as
// runs come in, and a stale answer could wrongly mark a goal missed.
type CachedFeed struct {
	client *redis.Client
	inner  engine.ActivityFeed
	ttl    time.Duration
	now    func() time.Time
}

// New creates a Redis-backed feed cache around inner with the provided
// configuration.
func New(config Config, inner engine.ActivityFeed, ttl time.Duration) (*CachedFeed, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, inner, ttl), nil
}

// NewWithClient creates a CachedFeed using an existing Redis client
// (useful for testing).
func NewWithClient(client *redis.Client, inner engine.ActivityFeed, ttl time.Duration) *CachedFeed {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedFeed{client: client, inner: inner, ttl: ttl, now: time.Now}
}

// Close closes the Redis connection
func (c *CachedFeed) Close() error {
	return c.client.Close()
}

// dayKey generates the Redis key for a user's cached day
func dayKey(user core.UserID, day time.Time) string {
	return fmt.Sprintf("feed:%s:day:%s", user, core.DayOf(day).Format("2006-01-02"))
}

// DayActivities serves past days from cache when possible and always
// fetches the current day live.
func (c *CachedFeed) DayActivities(ctx context.Context, user core.UserID, day time.Time) ([]core.Activity, error) {
	today := core.SameDay(day, c.now())
	key := dayKey(user, day)

	if !today {
		if cached, ok := c.getCached(ctx, key); ok {
			return cached, nil
		}
	}

	activities, err := c.inner.DayActivities(ctx, user, day)
	if err != nil {
		return nil, err
	}

	if !today {
		// Best-effort; a cache write failure must not fail the fetch.
		ctxCache, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = c.putCached(ctxCache, key, activities)
	}

	return activities, nil
}

// Invalidate drops the cached list for a user's day, e.g. after a
// manual correction on the provider side.
func (c *CachedFeed) Invalidate(ctx context.Context, user core.UserID, day time.Time) error {
	return c.client.Del(ctx, dayKey(user, day)).Err()
}

func (c *CachedFeed) getCached(ctx context.Context, key string) ([]core.Activity, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var activities []core.Activity
	if err := json.Unmarshal(data, &activities); err != nil {
		return nil, false
	}
	return activities, true
}

func (c *CachedFeed) putCached(ctx context.Context, key string, activities []core.Activity) error {
	data, err := json.Marshal(activities)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

var _ engine.ActivityFeed = (*CachedFeed)(nil)
