package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.Set(ctx, "orders|a", []byte("snapshot"), time.Minute))

	val, ok, err := c.Get(ctx, "orders|a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("snapshot"), val)

	_, ok, err = c.Get(ctx, "orders|b")
	require.NoError(t, err)
	assert.False(t, ok, "distinct keys must not collide")
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "k2", []byte("v"), time.Hour))

	now = now.Add(2 * time.Minute)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = c.Get(ctx, "k2")
	assert.True(t, ok)

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_NonPositiveTTLSkipsStore(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	src := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", src, time.Minute))
	src[0] = 'x'

	val, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(val))
	val[1] = 'y'

	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCache_Get(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db, "test:")

	mock.ExpectGet("test:hit").SetVal("payload")
	mock.ExpectGet("test:miss").RedisNil()
	mock.ExpectGet("test:down").SetErr(errors.New("connection refused"))

	val, ok, err := c.Get(ctx, "hit")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), val)

	_, ok, err = c.Get(ctx, "miss")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = c.Get(ctx, "down")
	assert.ErrorIs(t, err, ErrCacheUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_SetDelete(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db, "")

	mock.ExpectSet("insights:k", []byte("v"), time.Minute).SetVal("OK")
	mock.ExpectDel("insights:k").SetVal(1)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "skipped", []byte("v"), 0))
	require.NoError(t, c.Delete(ctx, "k"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
