package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "draft:v1:7", []byte(`{"a":1}`), 0))
	require.NoError(t, s.Set(ctx, "draft:v2:7", []byte(`{"a":2}`), 0))
	require.NoError(t, s.Set(ctx, "pending:x", []byte(`{}`), 0))

	got, err := s.Get(ctx, "draft:v1:7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	keys, err := s.Keys(ctx, "draft:")
	require.NoError(t, err)
	assert.Equal(t, []string{"draft:v1:7", "draft:v2:7"}, keys)

	require.NoError(t, s.Delete(ctx, "draft:v1:7"))
	require.NoError(t, s.Delete(ctx, "draft:v1:7"))
	_, err = s.Get(ctx, "draft:v1:7")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "draft:v1:7", []byte("hello"), 0))

	s2, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := s2.Get(ctx, "draft:v1:7")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileStore_Expiry(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Second))
	now = now.Add(2 * time.Second)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
