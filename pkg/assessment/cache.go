package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/geririsk/platform/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "assessment:"
	latestKey      = cacheKeyPrefix + "latest"
)

// Cache keeps finished assessments in Redis, one key per upload plus a
// pointer to the most recent one. A nil *Cache is a permanent miss.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, uploadID string) (*models.ProcessResponse, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	return c.get(ctx, cacheKeyPrefix+uploadID)
}

func (c *Cache) Latest(ctx context.Context) (*models.ProcessResponse, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	id, err := c.client.Get(ctx, latestKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get latest pointer: %w", err)
	}
	return c.get(ctx, cacheKeyPrefix+id)
}

// Put stores resp under its upload id. latest also moves the latest pointer.
func (c *Cache) Put(ctx context.Context, resp models.ProcessResponse, latest bool) error {
	if c == nil || resp.UploadID == "" {
		return nil
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, cacheKeyPrefix+resp.UploadID, payload, c.ttl)
		if latest {
			pipe.Set(ctx, latestKey, resp.UploadID, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set assessment cache: %w", err)
	}
	return nil
}

func (c *Cache) get(ctx context.Context, key string) (*models.ProcessResponse, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache: %w", err)
	}
	var resp models.ProcessResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal assessment: %w", err)
	}
	return &resp, true, nil
}
