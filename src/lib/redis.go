package lib

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

func GetRedisClient() *redis.Client {
	if redisClient != nil {
		return redisClient
	}
	redisHost := os.Getenv("REDIS_HOST")
	opt, err := redis.ParseURL(redisHost)
	if err != nil {
		log.Printf("[redis] Error parsing connection string: %s\n", err.Error())
		return nil
	}
	rdb := redis.NewClient(opt)
	redisClient = rdb
	return rdb
}

// NewRedisClient Replace redis instance with custom client implementation
func NewRedisClient(c *redis.Client) *redis.Client {
	redisClient = c
	return redisClient
}

// Cache is a JSON read-through cache over redis. A nil *Cache or a nil client turns every call
// into a miss, so callers never depend on redis being up.
type Cache struct {
	rdb    *redis.Client
	prefix string
}

func NewCache(rdb *redis.Client, prefix string) *Cache {
	return &Cache{rdb: rdb, prefix: prefix}
}

func (c *Cache) key(k string) string {
	return c.prefix + ":" + k
}

// GetJSON loads key into dst. It returns false on a miss or any redis failure.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[redis] Error retrieving %s: %s\n", key, err.Error())
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Printf("[redis] Error decoding %s: %s\n", key, err.Error())
		return false
	}
	return true
}

func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("[redis] Error encoding %s: %s\n", key, err.Error())
		return
	}
	if err := c.rdb.Set(ctx, c.key(key), string(raw), ttl).Err(); err != nil {
		log.Printf("[redis] Failed to set value for key %s: %s\n", key, err.Error())
	}
}

func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.rdb == nil || len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.rdb.Del(ctx, full...).Err(); err != nil {
		log.Printf("[redis] Failed to invalidate %v: %s\n", keys, err.Error())
	}
}
