//go:build integration

package integration

import (
	"context"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrischaps/TaskMan-sub000/internal/sweeper"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	t.Cleanup(func() {
		client.FlushAll(context.Background()) //nolint:errcheck
		client.Close()
	})
	return client
}

func TestRedisElector_SingleLeader(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	a := sweeper.NewRedisElector(client, "instance-a", slog.Default())
	b := sweeper.NewRedisElector(client, "instance-b", slog.Default())

	require.True(t, a.AmLeader(ctx), "first instance acquires the lease")
	assert.False(t, b.AmLeader(ctx), "second instance must not steal the lease")

	// The holder renews its own lease.
	assert.True(t, a.AmLeader(ctx))
	assert.False(t, b.AmLeader(ctx))
}

func TestRedisElector_TakesOverAfterRelease(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	a := sweeper.NewRedisElector(client, "instance-a", slog.Default())
	b := sweeper.NewRedisElector(client, "instance-b", slog.Default())

	require.True(t, a.AmLeader(ctx))

	// Simulate lease expiry.
	require.NoError(t, client.Del(ctx, "sweeper:leader").Err())

	assert.True(t, b.AmLeader(ctx), "a free lease goes to whoever asks first")
	assert.False(t, a.AmLeader(ctx), "the old leader must observe the takeover")
}
