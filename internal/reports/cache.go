package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

// DefaultCacheTTL bounds how stale a cached snapshot may be.
const DefaultCacheTTL = time.Minute

// RedisCache stores snapshots as JSON under agency:reports:snapshot:<day>.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache returns a RedisCache. A non-positive ttl uses DefaultCacheTTL.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func snapshotKey(day domain.Date) string {
	return "agency:reports:snapshot:" + day.String()
}

func (c *RedisCache) Get(ctx context.Context, day domain.Date) (postgres.Snapshot, bool, error) {
	raw, err := c.client.Get(ctx, snapshotKey(day)).Bytes()
	if errors.Is(err, redis.Nil) {
		return postgres.Snapshot{}, false, nil
	}
	if err != nil {
		return postgres.Snapshot{}, false, fmt.Errorf("get cached snapshot: %w", err)
	}
	var snap postgres.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return postgres.Snapshot{}, false, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return snap, true, nil
}

func (c *RedisCache) Set(ctx context.Context, day domain.Date, snap postgres.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey(day), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}
	return nil
}
