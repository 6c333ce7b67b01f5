package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "agency:reset:"

// RedisStore keeps tokens as keys with a TTL, so Redis expires them itself.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore returns a RedisStore backed by client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(token string) string {
	return redisKeyPrefix + token
}

func (s *RedisStore) Issue(ctx context.Context, username string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("issue reset token: ttl must be positive")
	}
	token, err := newToken()
	if err != nil {
		return "", err
	}
	ok, err := s.client.SetNX(ctx, redisKey(token), username, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("store reset token: collision")
	}
	return token, nil
}

func (s *RedisStore) Lookup(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	username, err := s.client.Get(ctx, redisKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup reset token: %w", err)
	}
	return username, true, nil
}

func (s *RedisStore) Consume(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	username, err := s.client.GetDel(ctx, redisKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("consume reset token: %w", err)
	}
	return username, true, nil
}

// Sweep is a no-op: expired keys are removed by Redis.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Pending counts live tokens with SCAN. It is meant for operator tooling.
func (s *RedisStore) Pending(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("scan reset tokens: %w", err)
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}
