// Package redisstore stores sessions as Redis hashes, one hash per session with
// one JSON-encoded field per key.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tjfontaine/actiongate/internal/core/ports"
)

// DefaultKeyPrefix namespaces session hashes.
const DefaultKeyPrefix = "gate:session:"

// Options configures a Backend.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL is refreshed on every write. Zero keeps sessions forever.
	TTL time.Duration
}

// Backend implements ports.SessionBackend on Redis. Values round-trip
// through JSON, so numbers come back as float64.
type Backend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	owned  bool
}

var _ ports.SessionBackend = (*Backend)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Backend, error) {
	addr := opts.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	b := NewFromClient(client, opts.KeyPrefix, opts.TTL)
	b.owned = true
	return b, nil
}

// NewFromClient wraps an existing client. The caller keeps ownership of it.
func NewFromClient(client *redis.Client, prefix string, ttl time.Duration) *Backend {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Backend{client: client, prefix: prefix, ttl: ttl}
}

func (b *Backend) Open(_ context.Context, id string) (ports.SessionStore, error) {
	if id == "" {
		return nil, errors.New("session id is required")
	}
	return &store{backend: b, key: b.prefix + id}, nil
}

func (b *Backend) Close() error {
	if b.owned {
		return b.client.Close()
	}
	return nil
}

type store struct {
	backend *Backend
	key     string
}

func (s *store) Get(ctx context.Context, key string) (any, bool, error) {
	raw, err := s.backend.client.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session get %s: %w", key, err)
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false, fmt.Errorf("session decode %s: %w", key, err)
	}
	return v, true, nil
}

func (s *store) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session encode %s: %w", key, err)
	}

	_, err = s.backend.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, key, raw)
		if s.backend.ttl > 0 {
			pipe.Expire(ctx, s.key, s.backend.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session set %s: %w", key, err)
	}
	return nil
}

func (s *store) Unset(ctx context.Context, key string) error {
	if err := s.backend.client.HDel(ctx, s.key, key).Err(); err != nil {
		return fmt.Errorf("session unset %s: %w", key, err)
	}
	return nil
}
