package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// TokenStore implements domain.TokenStore with plain string keys. Values
// never expire; each Put overwrites the previous value.
type TokenStore struct {
	rdb *redis.Client
}

// NewTokenStore creates a TokenStore backed by the given Client.
func NewTokenStore(c *Client) *TokenStore {
	return &TokenStore{rdb: c.Underlying()}
}

func tokenKey(key string) string {
	return KeyPrefix + "kv:" + key
}

// Put stores value under key.
func (s *TokenStore) Put(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, tokenKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis: put %s: %w", key, err)
	}
	return nil
}

// Get returns the value under key or domain.ErrNotFound.
func (s *TokenStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, tokenKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis: get %s: %w", key, err)
	}
	return v, nil
}

var _ domain.TokenStore = (*TokenStore)(nil)
