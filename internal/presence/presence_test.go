package presence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, "test")
}

func TestOnlineFollowsConnectionCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	online, err := store.Online(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)

	// Two devices connect, one drops: still online.
	require.NoError(t, store.Connected(ctx, 1))
	require.NoError(t, store.Connected(ctx, 1))
	require.NoError(t, store.Disconnected(ctx, 1))

	online, err = store.Online(ctx, 1)
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, store.Disconnected(ctx, 1))
	online, err = store.Online(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestPresenceIsPerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Connected(ctx, 1))

	online, err := store.Online(ctx, 2)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestDisabledStoreIsNoop(t *testing.T) {
	store := NewStore(nil, "test")
	ctx := context.Background()

	require.NoError(t, store.Connected(ctx, 1))
	online, err := store.Online(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)
	require.NoError(t, store.Disconnected(ctx, 1))
}
