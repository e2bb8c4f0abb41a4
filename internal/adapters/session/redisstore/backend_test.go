package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newBackend(t *testing.T, ttl time.Duration) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	b, err := New(context.Background(), Options{Addr: mr.Addr(), TTL: ttl})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, mr
}

func TestBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b, mr := newBackend(t, 0)

	s, err := b.Open(ctx, "abc")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "form", map[string]any{"field": "id", "input": map[string]any{"id": "0"}}))
	require.NoError(t, s.Set(ctx, "visits", 3))

	v, ok, err := s.Get(ctx, "form")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"field": "id", "input": map[string]any{"id": "0"}}, v)

	v, _, _ = s.Get(ctx, "visits")
	assert.Equal(t, float64(3), v)

	assert.Equal(t, `"id"`, mustField(t, mr, DefaultKeyPrefix+"abc", "form", "field"))

	require.NoError(t, s.Unset(ctx, "form"))
	_, ok, err = s.Get(ctx, "form")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackend_Missing(t *testing.T) {
	b, _ := newBackend(t, 0)
	s, _ := b.Open(context.Background(), "nobody")
	v, ok, err := s.Get(context.Background(), "user")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestBackend_TTL(t *testing.T) {
	ctx := context.Background()
	b, mr := newBackend(t, time.Minute)

	s, _ := b.Open(ctx, "abc")
	require.NoError(t, s.Set(ctx, "user", "u1"))
	assert.Equal(t, time.Minute, mr.TTL(DefaultKeyPrefix+"abc"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := s.Get(ctx, "user")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackend_CorruptValue(t *testing.T) {
	ctx := context.Background()
	b, mr := newBackend(t, 0)
	mr.HSet(DefaultKeyPrefix+"abc", "user", "{not json")

	s, _ := b.Open(ctx, "abc")
	_, _, err := s.Get(ctx, "user")
	assert.Error(t, err)
}

func TestNew_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}

func mustField(t *testing.T, mr *miniredis.Miniredis, key, field, path string) string {
	t.Helper()
	raw := mr.HGet(key, field)
	require.NotEmpty(t, raw)
	return gjson.Get(raw, path).Raw
}
