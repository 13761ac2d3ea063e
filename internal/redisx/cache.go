package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CategoryCache stores the catalog category list as JSON.
type CategoryCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewCategoryCache(rdb redis.Cmdable) *CategoryCache {
	return &CategoryCache{rdb: rdb, ttl: TTLCategories}
}

func (c *CategoryCache) GetCategories(ctx context.Context) ([]string, bool, error) {
	b, err := c.rdb.Get(ctx, KeyCategories).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var cats []string
	if err := json.Unmarshal(b, &cats); err != nil {
		return nil, false, fmt.Errorf("decode cached categories: %w", err)
	}
	return cats, true, nil
}

func (c *CategoryCache) SetCategories(ctx context.Context, categories []string) error {
	b, err := json.Marshal(categories)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, KeyCategories, b, c.ttl).Err()
}

func (c *CategoryCache) InvalidateCategories(ctx context.Context) error {
	return c.rdb.Del(ctx, KeyCategories).Err()
}

// DedupStore remembers processed event ids per consuming service.
type DedupStore struct {
	rdb     redis.Cmdable
	service string
	ttl     time.Duration
}

func NewDedupStore(rdb redis.Cmdable, service string) *DedupStore {
	return &DedupStore{rdb: rdb, service: service, ttl: TTLDedup}
}

func (d *DedupStore) key(eventID string) string {
	return fmt.Sprintf(KeyDedup, d.service, eventID)
}

func (d *DedupStore) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, d.rdb, d.key(eventID))
}

func (d *DedupStore) Mark(ctx context.Context, eventID string) error {
	return d.rdb.Set(ctx, d.key(eventID), "1", d.ttl).Err()
}
