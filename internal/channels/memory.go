package channels

import (
	"context"
	"sort"
	"sync"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// MemoryRegistry is an in-process ChannelRegistry.
type MemoryRegistry struct {
	mu       sync.RWMutex
	channels map[string]domain.Channel
}

// NewMemoryRegistry returns an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{channels: make(map[string]domain.Channel)}
}

func (r *MemoryRegistry) GetChannel(_ context.Context, id string) (*domain.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

// CreateChannel stores ch unless a channel with the same id exists.
func (r *MemoryRegistry) CreateChannel(_ context.Context, ch domain.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[ch.ID]; ok {
		return nil
	}
	r.channels[ch.ID] = ch
	return nil
}

// ListChannels returns every channel ordered by id.
func (r *MemoryRegistry) ListChannels(_ context.Context) ([]domain.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len returns the number of registered channels.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

var _ domain.ChannelRegistry = (*MemoryRegistry)(nil)
