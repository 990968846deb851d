// Package redis caches query embeddings keyed by a hash of the query text.
// Repeated or retried questions skip the embedding service entirely. Cache
// failures are logged and treated as misses.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docchat/backend/pkg/logger"
	"github.com/docchat/backend/pkg/utils"
)

const embeddingTTL = 24 * time.Hour

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Get(ctx context.Context, text string) ([]float32, bool) {
	key := fmt.Sprintf("embedding:%s", utils.HashString(text))

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		logger.Warn("Embedding cache entry corrupt", zap.Error(err))
		return nil, false
	}

	logger.Debug("Embedding cache hit", zap.String("key", key))
	return embedding, true
}

func (c *Client) Put(ctx context.Context, text string, embedding []float32) {
	key := fmt.Sprintf("embedding:%s", utils.HashString(text))

	data, err := json.Marshal(embedding)
	if err != nil {
		logger.Warn("Failed to marshal embedding for cache", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, key, data, embeddingTTL).Err(); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
}
