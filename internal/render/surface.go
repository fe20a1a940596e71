package render

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// MemorySurface keeps the currently visible notifications in memory, keyed
// by id. It backs the HTTP inspection endpoint and tests.
type MemorySurface struct {
	mu      sync.RWMutex
	visible map[int32]domain.NotificationSpec
	calls   int
}

// NewMemorySurface creates an empty MemorySurface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{visible: make(map[int32]domain.NotificationSpec)}
}

// Notify stores spec under id, replacing any earlier notification.
func (m *MemorySurface) Notify(_ context.Context, id int32, spec domain.NotificationSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible[id] = spec
	m.calls++
	return nil
}

// Get returns the notification visible under id.
func (m *MemorySurface) Get(id int32) (domain.NotificationSpec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.visible[id]
	return spec, ok
}

// Len returns the number of visible notifications.
func (m *MemorySurface) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.visible)
}

// Calls returns how many times Notify was invoked.
func (m *MemorySurface) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Fanout dispatches every notification to all of its surfaces. One failing
// surface does not stop delivery to the others.
type Fanout []domain.NotificationSurface

// Notify implements domain.NotificationSurface.
func (f Fanout) Notify(ctx context.Context, id int32, spec domain.NotificationSpec) error {
	var errs []error
	for i, s := range f {
		if s == nil {
			continue
		}
		if err := notifySafe(ctx, s, id, spec); err != nil {
			errs = append(errs, fmt.Errorf("surface %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func notifySafe(ctx context.Context, s domain.NotificationSurface, id int32, spec domain.NotificationSpec) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return s.Notify(ctx, id, spec)
}

var (
	_ domain.NotificationSurface = (*MemorySurface)(nil)
	_ domain.NotificationSurface = Fanout(nil)
)
