// Package sqldb stores sessions in a SQL table, one row per session key.
// SQLite and PostgreSQL are supported.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/actiongate/internal/core/ports"
	"github.com/tjfontaine/actiongate/internal/storage/dialect"
)

// Backend implements ports.SessionBackend over a SQL database. Values
// round-trip through JSON. Expired rows are invisible to readers and
// removed by Purge.
type Backend struct {
	db      *sqlx.DB
	dialect dialect.Dialect
	queries queries
	ttl     time.Duration
	now     func() time.Time
}

var _ ports.SessionBackend = (*Backend)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS session_values (
	session_id TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	expires_at BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, name)
)`,
	`CREATE INDEX IF NOT EXISTS idx_session_values_expires ON session_values(expires_at)`,
}

type queries struct {
	get, upsert, touch, unset, purge string
}

func buildQueries(d dialect.Dialect) queries {
	upsert := `INSERT INTO session_values (session_id, name, value, expires_at) VALUES (?, ?, ?, ?) ` +
		d.UpsertClause([]string{"session_id", "name"}, []string{"value", "expires_at"})
	return queries{
		get:    d.Rebind(`SELECT value, expires_at FROM session_values WHERE session_id = ? AND name = ?`),
		upsert: d.Rebind(upsert),
		touch:  d.Rebind(`UPDATE session_values SET expires_at = ? WHERE session_id = ?`),
		unset:  d.Rebind(`DELETE FROM session_values WHERE session_id = ? AND name = ?`),
		purge:  d.Rebind(`DELETE FROM session_values WHERE expires_at > 0 AND expires_at <= ?`),
	}
}

// New wraps an open database. The dialect follows the driver name; the
// schema is not touched, see Migrate.
func New(db *sqlx.DB, ttl time.Duration) (*Backend, error) {
	d, err := dialect.FromDriverName(db.DriverName())
	if err != nil {
		return nil, err
	}
	return &Backend{db: db, dialect: d, queries: buildQueries(d), ttl: ttl, now: time.Now}, nil
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string, ttl time.Duration) (*Backend, error) {
	return open(ctx, dialect.SQLite, path, ttl)
}

// OpenPostgres connects to PostgreSQL and creates the table if missing.
func OpenPostgres(ctx context.Context, dsn string, ttl time.Duration) (*Backend, error) {
	return open(ctx, dialect.Postgres, dsn, ttl)
}

func open(ctx context.Context, t dialect.DialectType, dsn string, ttl time.Duration) (*Backend, error) {
	d, err := dialect.New(t)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	for _, stmt := range d.PragmaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	b, err := New(db, ttl)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := b.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// Migrate creates the session table and its expiry index.
func (b *Backend) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (b *Backend) Open(_ context.Context, id string) (ports.SessionStore, error) {
	if id == "" {
		return nil, errors.New("session id is required")
	}
	return &store{backend: b, id: id}, nil
}

// Purge deletes expired rows and returns how many were removed.
func (b *Backend) Purge(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx, b.queries.purge, b.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}

// Dialect returns the SQL dialect in use.
func (b *Backend) Dialect() dialect.Dialect {
	return b.dialect
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) expiry() int64 {
	if b.ttl <= 0 {
		return 0
	}
	return b.now().Add(b.ttl).UnixNano()
}

type row struct {
	Value     string `db:"value"`
	ExpiresAt int64  `db:"expires_at"`
}

type store struct {
	backend *Backend
	id      string
}

func (s *store) Get(ctx context.Context, key string) (any, bool, error) {
	var r row
	err := s.backend.db.GetContext(ctx, &r, s.backend.queries.get, s.id, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session get %s: %w", key, err)
	}
	if r.ExpiresAt > 0 && r.ExpiresAt <= s.backend.now().UnixNano() {
		return nil, false, nil
	}

	var v any
	if err := json.Unmarshal([]byte(r.Value), &v); err != nil {
		return nil, false, fmt.Errorf("session decode %s: %w", key, err)
	}
	return v, true, nil
}

// Set writes key and slides the expiry of every key in the session.
func (s *store) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session encode %s: %w", key, err)
	}
	expires := s.backend.expiry()

	tx, err := s.backend.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session set %s: %w", key, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.backend.queries.upsert, s.id, key, string(raw), expires); err != nil {
		return fmt.Errorf("session set %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, s.backend.queries.touch, expires, s.id); err != nil {
		return fmt.Errorf("session touch: %w", err)
	}
	return tx.Commit()
}

func (s *store) Unset(ctx context.Context, key string) error {
	if _, err := s.backend.db.ExecContext(ctx, s.backend.queries.unset, s.id, key); err != nil {
		return fmt.Errorf("session unset %s: %w", key, err)
	}
	return nil
}
