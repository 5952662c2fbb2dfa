// Package store persists verification sessions between page requests.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"verifiedai/internal/verification"
	"verifiedai/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in process memory with a sliding TTL.
// Sessions are cloned on the way in and out so callers never share state.
type InMemoryStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewInMemory creates a store whose entries expire ttl after their last save.
func NewInMemory(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		cache: cache.New(ttl, ttl/2+time.Minute),
		ttl:   ttl,
	}
}

func (s *InMemoryStore) Load(_ context.Context, id string) (*verification.Session, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, sentinel.ErrNotFound)
	}
	return v.(*verification.Session).Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, session *verification.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("save session without id: %w", sentinel.ErrInvalidState)
	}
	s.cache.Set(session.ID, session.Clone(), s.ttl)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}
