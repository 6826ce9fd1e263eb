package chatbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultContextTTL = 24 * time.Hour

// RedisContextCache caches serialized conversation contexts so a turn does
// not need the conversation row just to rebuild its context.
type RedisContextCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisContextCache creates the cache. A non-positive ttl falls back to
// 24h.
func NewRedisContextCache(client *redis.Client, ttl time.Duration) *RedisContextCache {
	if client == nil {
		panic("chatbot: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultContextTTL
	}
	return &RedisContextCache{client: client, ttl: ttl}
}

func contextKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("botctx:%s", conversationID)
}

// Get fetches the cached context blob; ok is false on a miss.
func (c *RedisContextCache) Get(ctx context.Context, conversationID uuid.UUID) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, contextKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("chatbot: context cache get: %w", err)
	}
	return data, true, nil
}

// Set stores the context blob with the cache TTL.
func (c *RedisContextCache) Set(ctx context.Context, conversationID uuid.UUID, data []byte) error {
	if err := c.client.Set(ctx, contextKey(conversationID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("chatbot: context cache set: %w", err)
	}
	return nil
}

// Delete drops the cached context, e.g. when a conversation ends.
func (c *RedisContextCache) Delete(ctx context.Context, conversationID uuid.UUID) error {
	if err := c.client.Del(ctx, contextKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("chatbot: context cache delete: %w", err)
	}
	return nil
}
