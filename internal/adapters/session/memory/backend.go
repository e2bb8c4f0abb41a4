// Package memory provides an in-process session backend.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tjfontaine/actiongate/internal/core/ports"
)

// DefaultMaxSessions bounds the number of live sessions held in memory.
const DefaultMaxSessions = 100000

// Backend keeps sessions in an expiring LRU. A session's TTL restarts on
// every write; the least recently written session is evicted when the
// backend is full.
type Backend struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *store]
}

var _ ports.SessionBackend = (*Backend)(nil)

// New creates a backend. ttl <= 0 disables expiry; maxSessions <= 0 uses
// DefaultMaxSessions.
func New(ttl time.Duration, maxSessions int) *Backend {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Backend{
		sessions: expirable.NewLRU[string, *store](maxSessions, nil, ttl),
	}
}

// Open returns the session for id, creating it if needed.
func (b *Backend) Open(_ context.Context, id string) (ports.SessionStore, error) {
	if id == "" {
		return nil, errors.New("session id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.sessions.Get(id); ok {
		return s, nil
	}
	s := &store{backend: b, id: id, values: make(map[string]any)}
	b.sessions.Add(id, s)
	return s, nil
}

// Len returns the number of live sessions.
func (b *Backend) Len() int {
	return b.sessions.Len()
}

func (b *Backend) Close() error {
	b.sessions.Purge()
	return nil
}

func (b *Backend) touch(s *store) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions.Add(s.id, s)
}

type store struct {
	backend *Backend
	id      string

	mu     sync.RWMutex
	values map[string]any
}

func (s *store) Get(_ context.Context, key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *store) Set(_ context.Context, key string, value any) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()

	s.backend.touch(s)
	return nil
}

func (s *store) Unset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()

	s.backend.touch(s)
	return nil
}
