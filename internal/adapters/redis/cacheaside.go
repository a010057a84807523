package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ticketbay/settlement/internal/observability"
)

type envelope struct {
	Value    json.RawMessage `json:"v"`
	StoredAt int64           `json:"at"`
}

// ReadThrough is the cache-aside read path: fresh entries are served
// directly, entries inside the stale window are served while a background
// refresh runs, and everything else loads from the source and is written
// back under the query's tag set. Cache trouble degrades to a plain load.
func (c *Cache) ReadThrough(ctx context.Context, key string, tags []string, ttl, staleWindow time.Duration, dest interface{}, load func(ctx context.Context) (interface{}, error)) error {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil && err != redis.Nil {
		c.logger.WithField("key", key).Warn("cache read failed: ", err)
	}
	if err == nil {
		var env envelope
		if jsonErr := json.Unmarshal(raw, &env); jsonErr == nil {
			age := time.Since(time.Unix(env.StoredAt, 0))
			if age <= ttl {
				observability.CacheReads.WithLabelValues("hit").Inc()
				return json.Unmarshal(env.Value, dest)
			}
			if age <= ttl+staleWindow {
				observability.CacheReads.WithLabelValues("stale").Inc()
				go c.refresh(context.WithoutCancel(ctx), key, tags, ttl, staleWindow, load)
				return json.Unmarshal(env.Value, dest)
			}
		}
	}

	observability.CacheReads.WithLabelValues("miss").Inc()
	value, err := load(ctx)
	if err != nil {
		return err
	}
	c.store(ctx, key, tags, ttl, staleWindow, value)

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (c *Cache) refresh(ctx context.Context, key string, tags []string, ttl, staleWindow time.Duration, load func(ctx context.Context) (interface{}, error)) {
	value, err := load(ctx)
	if err != nil {
		c.logger.WithField("key", key).Warn("stale refresh failed: ", err)
		return
	}
	c.store(ctx, key, tags, ttl, staleWindow, value)
}

func (c *Cache) store(ctx context.Context, key string, tags []string, ttl, staleWindow time.Duration, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.WithField("key", key).Warn("cache marshal failed: ", err)
		return
	}
	env, _ := json.Marshal(envelope{Value: data, StoredAt: time.Now().Unix()})
	if err := c.client.Set(ctx, key, env, ttl+staleWindow).Err(); err != nil {
		c.logger.WithField("key", key).Warn("cache write failed: ", err)
		return
	}
	c.tagKey(ctx, key, tags)
}
