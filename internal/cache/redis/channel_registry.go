package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// channelsKey is a single hash holding every channel as JSON, keyed by id.
const channelsKey = KeyPrefix + "channels"

// ChannelRegistry implements domain.ChannelRegistry. Creation uses HSETNX so
// concurrent creators of the same id leave exactly one entry.
type ChannelRegistry struct {
	rdb *redis.Client
}

// NewChannelRegistry creates a ChannelRegistry backed by the given Client.
func NewChannelRegistry(c *Client) *ChannelRegistry {
	return &ChannelRegistry{rdb: c.Underlying()}
}

// GetChannel returns the channel with id, or nil if it does not exist.
func (r *ChannelRegistry) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	raw, err := r.rdb.HGet(ctx, channelsKey, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get channel %s: %w", id, err)
	}

	var ch domain.Channel
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, fmt.Errorf("redis: decode channel %s: %w", id, err)
	}
	return &ch, nil
}

// CreateChannel stores ch unless a channel with the same id exists.
func (r *ChannelRegistry) CreateChannel(ctx context.Context, ch domain.Channel) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("redis: encode channel %s: %w", ch.ID, err)
	}
	if err := r.rdb.HSetNX(ctx, channelsKey, ch.ID, raw).Err(); err != nil {
		return fmt.Errorf("redis: create channel %s: %w", ch.ID, err)
	}
	return nil
}

// ListChannels returns every registered channel ordered by id.
func (r *ChannelRegistry) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	all, err := r.rdb.HGetAll(ctx, channelsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list channels: %w", err)
	}
	out := make([]domain.Channel, 0, len(all))
	for id, raw := range all {
		var ch domain.Channel
		if err := json.Unmarshal([]byte(raw), &ch); err != nil {
			return nil, fmt.Errorf("redis: decode channel %s: %w", id, err)
		}
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ domain.ChannelRegistry = (*ChannelRegistry)(nil)
