package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/ticketbay/settlement/internal/observability"
)

const tagSetPrefix = "tagset:"

// Cache implements tag-based invalidation on redis. Every cached key is
// registered under its tags as set members; invalidating a tag deletes the
// members and the set. Best-effort throughout: errors are logged and
// swallowed, never returned to settlement.
type Cache struct {
	client *redis.Client
	logger observability.Logger
}

func NewCache(client *redis.Client, logger observability.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) Invalidate(ctx context.Context, tags []string) {
	for _, tag := range tags {
		setKey := tagSetPrefix + tag
		keys, err := c.client.SMembers(ctx, setKey).Result()
		if err != nil {
			c.logger.WithField("tag", tag).Warn("cache invalidation read failed: ", err)
			continue
		}
		keys = append(keys, setKey)
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.logger.WithField("tag", tag).Warn("cache invalidation delete failed: ", err)
		}
	}
}

func (c *Cache) tagKey(ctx context.Context, key string, tags []string) {
	for _, tag := range tags {
		if err := c.client.SAdd(ctx, tagSetPrefix+tag, key).Err(); err != nil {
			c.logger.WithField("tag", tag).Warn("cache tag registration failed: ", err)
		}
	}
}
