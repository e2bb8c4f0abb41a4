// Package session builds the configured session backend.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/tjfontaine/actiongate/internal/adapters/session/memory"
	"github.com/tjfontaine/actiongate/internal/adapters/session/redisstore"
	"github.com/tjfontaine/actiongate/internal/adapters/session/sqldb"
	"github.com/tjfontaine/actiongate/internal/core/ports"
	"github.com/tjfontaine/actiongate/internal/pkg/config"
)

const (
	TypeMemory   = "memory"
	TypeRedis    = "redis"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// NewBackend opens the backend named by cfg.Type.
func NewBackend(ctx context.Context, cfg config.SessionConfig) (ports.SessionBackend, error) {
	var ttl time.Duration
	if cfg.TTL != "" {
		d, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid session ttl %q: %w", cfg.TTL, err)
		}
		ttl = d
	}

	switch cfg.Type {
	case "", TypeMemory:
		return memory.New(ttl, 0), nil
	case TypeRedis:
		return redisstore.New(ctx, redisstore.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       ttl,
		})
	case TypeSQLite:
		path := cfg.SQLite.Path
		if path == "" {
			path = "sessions.db"
		}
		return sqldb.OpenSQLite(ctx, path, ttl)
	case TypePostgres:
		if cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("postgres session backend requires session.postgres.dsn")
		}
		return sqldb.OpenPostgres(ctx, cfg.Postgres.DSN, ttl)
	default:
		return nil, fmt.Errorf("unknown session type %q", cfg.Type)
	}
}
