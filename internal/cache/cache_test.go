package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Description string `json:"description"`
}

func TestCacheRoundTripAndMiss(t *testing.T) {
	ctx := context.Background()
	c, err := New[entry](NewMemoryStore(), "explanation_v3", time.Hour)
	require.NoError(t, err)

	_, err = c.Get(ctx, "SQL_INJECTION:abc")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "SQL_INJECTION:abc", entry{Description: "d"}))
	got, err := c.Get(ctx, "SQL_INJECTION:abc")
	require.NoError(t, err)
	assert.Equal(t, "d", got.Description)
	assert.Equal(t, "explanation_v3:SQL_INJECTION:abc", c.Key("SQL_INJECTION:abc"))
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	c, err := New[entry](store, "p", 24*time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "k", entry{Description: "d"}))

	now = now.Add(23 * time.Hour)
	_, err = c.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Zero(t, store.Len())
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection reset")
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection reset")
}

func TestCacheSurfacesStoreErrors(t *testing.T) {
	ctx := context.Background()
	c, err := New[entry](brokenStore{}, "p", time.Hour)
	require.NoError(t, err)

	_, err = c.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
	assert.Error(t, c.Set(ctx, "k", entry{}))
}

func TestCacheCorruptValue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "p:k", []byte("{not json"), time.Hour))
	c, err := New[entry](store, "p", time.Hour)
	require.NoError(t, err)

	_, err = c.Get(ctx, "k")
	assert.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	_, err := New[entry](nil, "p", time.Hour)
	assert.Error(t, err)
	_, err = New[entry](NewMemoryStore(), "", time.Hour)
	assert.Error(t, err)
	_, err = New[entry](NewMemoryStore(), "p", 0)
	assert.Error(t, err)
}
