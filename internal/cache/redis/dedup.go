package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// Deduper implements domain.Deduper with SETNX and a TTL, so that every
// replica consuming the same transport agrees on which message ids were
// already handled.
type Deduper struct {
	rdb *redis.Client
}

// NewDeduper creates a Deduper backed by the given Client.
func NewDeduper(c *Client) *Deduper {
	return &Deduper{rdb: c.Underlying()}
}

func dedupKey(id string) string {
	return KeyPrefix + "seen:" + id
}

// FirstSeen marks id as seen for ttl and reports whether it was new.
func (d *Deduper) FirstSeen(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, dedupKey(id), time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: dedup %s: %w", id, err)
	}
	return ok, nil
}

var _ domain.Deduper = (*Deduper)(nil)
