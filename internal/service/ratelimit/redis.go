package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for the shared per-second window. Atomically checks the limit
// and only increments when the call fits.
const secondWindowScript = `
local key = KEYS[1]
local increment = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key) or "0")

if current + increment > limit then
    return {0, current}
end

local newVal = redis.call("INCRBY", key, increment)
if newVal == increment then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}
`

// RedisCounter shares a per-second call budget across replicas. Every
// failure path allows the call; the local bucket remains the authority when
// Redis is unreachable.
type RedisCounter struct {
	client    *redis.Client
	perSecond int
	script    *redis.Script
}

// NewRedisCounter wraps an existing client.
func NewRedisCounter(client *redis.Client, perSecond int) *RedisCounter {
	return &RedisCounter{
		client:    client,
		perSecond: perSecond,
		script:    redis.NewScript(secondWindowScript),
	}
}

// NewRedisCounterFromURL connects to Redis and verifies the connection.
func NewRedisCounterFromURL(redisURL string, perSecond int) (*RedisCounter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Printf("[RateLimit] Connected to Redis for shared counters")

	return NewRedisCounter(client, perSecond), nil
}

// Allow atomically checks and increments the provider's per-second counter.
func (c *RedisCounter) Allow(ctx context.Context, provider string, n int) bool {
	key := fmt.Sprintf("ratelimit:%s:sec:%d", provider, time.Now().Unix())

	result, err := c.script.Run(ctx, c.client, []string{key}, n, c.perSecond, 2).Slice()
	if err != nil {
		log.Printf("[RateLimit] Shared counter check failed, allowing locally: %v", err)
		return true
	}

	allowed, ok := result[0].(int64)
	return !ok || allowed == 1
}

// Close closes the Redis connection.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}
