package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/winnowhq/winnow/pkg/models"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	SetEmbedding(ctx context.Context, provider, textHash string, vector models.Vector) error
	GetEmbedding(ctx context.Context, provider, textHash string) (models.Vector, bool, error)
	SetRunStatus(ctx context.Context, runID uuid.UUID, status string, ttl time.Duration) error
	GetRunStatus(ctx context.Context, runID uuid.UUID) (string, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// SetEmbedding caches a vector under the content hash of its source text.
// Embeddings are immutable for a given (provider, text) pair, so no TTL.
func (c *RedisCache) SetEmbedding(ctx context.Context, provider, textHash string, vector models.Vector) error {
	payload, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	return c.client.Set(ctx, EmbeddingKey(provider, textHash), payload, 0).Err()
}

func (c *RedisCache) GetEmbedding(ctx context.Context, provider, textHash string) (models.Vector, bool, error) {
	val, err := c.client.Get(ctx, EmbeddingKey(provider, textHash)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var vector models.Vector
	if err := json.Unmarshal(val, &vector); err != nil {
		return nil, false, fmt.Errorf("unmarshal embedding: %w", err)
	}
	return vector, true, nil
}

func (c *RedisCache) SetRunStatus(ctx context.Context, runID uuid.UUID, status string, ttl time.Duration) error {
	return c.client.Set(ctx, RunStatusKey(runID), status, ttl).Err()
}

func (c *RedisCache) GetRunStatus(ctx context.Context, runID uuid.UUID) (string, bool, error) {
	val, err := c.client.Get(ctx, RunStatusKey(runID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
