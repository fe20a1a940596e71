package memory

import (
	"context"
	"sync"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// TokenStore implements domain.TokenStore in process.
type TokenStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewTokenStore creates an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{values: make(map[string]string)}
}

// Put overwrites key.
func (s *TokenStore) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Get returns domain.ErrNotFound when key was never written.
func (s *TokenStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}
