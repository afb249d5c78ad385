package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

// SummaryCache holds recently served model summaries.
// Failures are logged and treated as misses; the cache is never authoritative.
type SummaryCache interface {
	Get(ctx context.Context, id int64) (*domain.ModelSummary, bool)
	Set(ctx context.Context, summary *domain.ModelSummary)
	Evict(ctx context.Context, id int64)
}

// RedisCache stores summaries as JSON strings with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache creates a cache on client.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

var _ SummaryCache = (*RedisCache)(nil)

// Key returns the redis key of a model summary.
func Key(id int64) string {
	return fmt.Sprintf("model:summary:%d", id)
}

func (c *RedisCache) Get(ctx context.Context, id int64) (*domain.ModelSummary, bool) {
	raw, err := c.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Failed to read cached summary",
			slog.Int64("model_id", id),
			slog.Any("error", err),
		)
		return nil, false
	}

	var summary domain.ModelSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		c.logger.Warn("Discarding undecodable cached summary",
			slog.Int64("model_id", id),
			slog.Any("error", err),
		)
		c.Evict(ctx, id)
		return nil, false
	}
	return &summary, true
}

func (c *RedisCache) Set(ctx context.Context, summary *domain.ModelSummary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		c.logger.Warn("Failed to encode summary for cache",
			slog.Int64("model_id", summary.ID),
			slog.Any("error", err),
		)
		return
	}

	if err := c.client.Set(ctx, Key(summary.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to cache summary",
			slog.Int64("model_id", summary.ID),
			slog.Any("error", err),
		)
	}
}

func (c *RedisCache) Evict(ctx context.Context, id int64) {
	if err := c.client.Del(ctx, Key(id)).Err(); err != nil {
		c.logger.Warn("Failed to evict cached summary",
			slog.Int64("model_id", id),
			slog.Any("error", err),
		)
	}
}

// NoopCache never stores anything. Used when no redis address is configured.
type NoopCache struct{}

var _ SummaryCache = NoopCache{}

func (NoopCache) Get(ctx context.Context, id int64) (*domain.ModelSummary, bool) { return nil, false }
func (NoopCache) Set(ctx context.Context, summary *domain.ModelSummary)          {}
func (NoopCache) Evict(ctx context.Context, id int64)                            {}
