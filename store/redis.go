package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reviewlens/reviewlens/models"
)

const keyPrefix = "reviewlens:analysis:"

// RedisStore caches analyses in Redis. Entries carry a native TTL derived
// from their expiry, so Redis drops stale data on its own.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, asin string) (*models.ProductAnalysis, bool, error) {
	data, err := s.client.Get(ctx, keyPrefix+asin).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get analysis: %w", err)
	}

	var entry models.ProductAnalysis
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal analysis: %w", err)
	}

	// The key TTL normally covers this, but the stored expiry is
	// authoritative if the two drift.
	if entry.Expired(time.Now()) {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (s *RedisStore) Put(ctx context.Context, entry *models.ProductAnalysis) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := s.client.Set(ctx, keyPrefix+entry.ASIN, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set analysis: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, asin string) error {
	deleted, err := s.client.Del(ctx, keyPrefix+asin).Result()
	if err != nil {
		return fmt.Errorf("redis del analysis: %w", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
