package recovery

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/agency-service/internal/testutil"
)

// runTokenStoreContract exercises the behaviour every TokenStore shares.
func runTokenStoreContract(t *testing.T, store TokenStore) {
	ctx := context.Background()

	t.Run("issue and consume once", func(t *testing.T) {
		token, err := store.Issue(ctx, "karel", time.Minute)
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)
		assert.Len(t, raw, tokenBytes)

		username, ok, err := store.Lookup(ctx, token)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "karel", username)

		username, ok, err = store.Consume(ctx, token)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "karel", username)

		_, ok, err = store.Consume(ctx, token)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, ok, err := store.Lookup(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = store.Consume(ctx, "")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("tokens are distinct", func(t *testing.T) {
		a, err := store.Issue(ctx, "karel", time.Minute)
		require.NoError(t, err)
		b, err := store.Issue(ctx, "karel", time.Minute)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestMemoryStoreContract(t *testing.T) {
	runTokenStoreContract(t, NewMemoryStore())
}

func TestRedisStoreContract(t *testing.T) {
	client := testutil.NewRedis(t)
	runTokenStoreContract(t, NewRedisStore(client))
}

func TestRedisStoreExpiry(t *testing.T) {
	client := testutil.NewRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	token, err := store.Issue(ctx, "karel", time.Minute)
	require.NoError(t, err)

	ttl, err := client.TTL(ctx, redisKey(token)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	_, err = store.Issue(ctx, "karel", 0)
	require.Error(t, err)

	removed, err := store.Sweep(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)

	require.NoError(t, client.Set(ctx, "unrelated", "x", 0).Err())
	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	expired, err := store.Issue(ctx, "karel", time.Minute)
	require.NoError(t, err)
	live, err := store.Issue(ctx, "jana", time.Hour)
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)

	_, ok, err := store.Lookup(ctx, expired)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := store.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	username, ok, err := store.Consume(ctx, live)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "jana", username)
}
