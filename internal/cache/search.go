// Package cache keeps rendered event-search results in redis.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ticket-bazaar/internal/logger"
)

const keyPrefix = "events:search:"

// SearchCache is optional: a nil *SearchCache always misses. Redis failures
// are logged and treated as misses so search keeps working without it.
type SearchCache struct {
	Client *redis.Client
	TTL    time.Duration
	log    *logger.Logger
}

func NewSearchCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *SearchCache {
	return &SearchCache{Client: client, TTL: ttl, log: log}
}

func Key(city int64, limit int, tokens []string) string {
	return fmt.Sprintf("%s%d:%d:%s", keyPrefix, city, limit, strings.Join(tokens, "+"))
}

func (c *SearchCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.Client == nil {
		return nil, false
	}
	val, err := c.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn("REDIS", fmt.Sprintf("search cache get %s: %v", key, err))
		return nil, false
	}
	return val, true
}

func (c *SearchCache) Set(ctx context.Context, key string, val []byte) {
	if c == nil || c.Client == nil || c.TTL <= 0 {
		return
	}
	if err := c.Client.Set(ctx, key, val, c.TTL).Err(); err != nil {
		c.log.Warn("REDIS", fmt.Sprintf("search cache set %s: %v", key, err))
	}
}

// Flush drops every cached search, e.g. after a catalog reload.
func (c *SearchCache) Flush(ctx context.Context) (int, error) {
	if c == nil || c.Client == nil {
		return 0, nil
	}
	var n int
	iter := c.Client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.Client.Del(ctx, iter.Val()).Err(); err != nil {
			return n, err
		}
		n++
	}
	return n, iter.Err()
}
