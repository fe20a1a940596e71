// Package memory holds in-process fallbacks for the Redis-backed stores,
// used when Redis is disabled and in tests.
package memory

import (
	"context"
	"sync"
	"time"
)

// Deduper implements domain.Deduper in process. It is safe for concurrent
// use but not shared between replicas.
type Deduper struct {
	seen map[string]time.Time // message id -> expiry
	now  func() time.Time
	mu   sync.Mutex
}

// NewDeduper creates an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// FirstSeen returns true if id has not been offered within ttl, and records
// it. It never fails.
func (d *Deduper) FirstSeen(_ context.Context, id string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	d.seen[id] = now.Add(ttl)
	return true, nil
}

// Cleanup removes expired entries. Call it periodically to bound memory.
func (d *Deduper) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, id)
		}
	}
}

// Len returns the number of tracked ids.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (d *Deduper) RunCleanup(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			d.Cleanup()
		}
	}
}
