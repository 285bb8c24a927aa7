// Package cache provides shared backends for memoized ancestor chains.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"lineage/internal/parents"
)

const (
	defaultTTL  = time.Hour
	purgeBatch  = 500
	chainPrefix = "parents:"
)

// RedisCache memoizes chains in redis so runs sharing a cache key share
// work across worker processes. Entries expire after ttl.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ parents.Cache = (*RedisCache)(nil)

// NewRedisCache connects to redisURL and checks the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient creates a cache from an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{
		client: client,
		prefix: chainPrefix,
		ttl:    ttl,
	}
}

func (c *RedisCache) key(scope, nodeID string) string {
	return c.prefix + scope + ":" + nodeID
}

func (c *RedisCache) Get(ctx context.Context, scope, nodeID string) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, c.key(scope, nodeID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached chain: %w", err)
	}

	var chain []string
	if err := json.Unmarshal(raw, &chain); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached chain: %w", err)
	}
	return chain, true, nil
}

func (c *RedisCache) Set(ctx context.Context, scope, nodeID string, chain []string) error {
	raw, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("marshal chain: %w", err)
	}
	if err := c.client.Set(ctx, c.key(scope, nodeID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached chain: %w", err)
	}
	return nil
}

// Purge deletes every chain of scope.
func (c *RedisCache) Purge(ctx context.Context, scope string) error {
	pattern := escapeGlob(c.prefix+scope+":") + "*"
	iter := c.client.Scan(ctx, 0, pattern, purgeBatch).Iterator()

	batch := make([]string, 0, purgeBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("purge cached chains: %w", err)
		}
		batch = batch[:0]
		return nil
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == purgeBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached chains: %w", err)
	}
	return flush()
}

// Close closes the redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks if redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
