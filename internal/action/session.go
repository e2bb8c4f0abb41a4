package action

import (
	"context"
	"fmt"
	"sync"
)

// scratchSession backs a Context that was created without a session store.
// Its contents live only as long as the Context.
type scratchSession struct {
	mu   sync.Mutex
	data map[string]any
}

func newScratchSession() *scratchSession {
	return &scratchSession{data: map[string]any{}}
}

func (s *scratchSession) Get(_ context.Context, key string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *scratchSession) Set(_ context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *scratchSession) Unset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Flash reads the flash slot name and clears it, so flashed data is seen by
// exactly one request after the redirect that stored it.
func (c *Context) Flash(ctx context.Context, name string) (any, bool, error) {
	v, ok, err := c.session.Get(ctx, name)
	if err != nil || !ok {
		return nil, false, err
	}
	if err := c.session.Unset(ctx, name); err != nil {
		return nil, false, fmt.Errorf("clear flash %s: %w", name, err)
	}
	return v, true, nil
}

// SetFlash stores value in the flash slot name for the next request.
func (c *Context) SetFlash(ctx context.Context, name string, value any) error {
	return c.session.Set(ctx, name, value)
}
