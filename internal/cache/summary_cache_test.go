package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/cuongbtq/gwo-trainer/internal/domain"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "model:summary:42", Key(42))
}

func TestNoopCache(t *testing.T) {
	var c SummaryCache = NoopCache{}
	ctx := context.Background()

	c.Set(ctx, &domain.ModelSummary{ID: 1})
	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)
	c.Evict(ctx, 1)
}

func TestRedisCache_UnreachableServerIsAMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewRedisCache(client, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	assert.NotPanics(t, func() {
		c.Set(ctx, &domain.ModelSummary{ID: 3, Status: domain.StatusTraining})
		c.Evict(ctx, 3)
	})
	summary, ok := c.Get(ctx, 3)
	assert.False(t, ok)
	assert.Nil(t, summary)
}
