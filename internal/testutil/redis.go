// Package testutil holds container helpers shared by integration tests.
package testutil

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewRedis starts a disposable Redis container and returns a connected
// client. The container is terminated when the test finishes. Tests are
// skipped in -short mode.
func NewRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")),
	)
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	_, err = client.Ping(ctx).Result()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		require.NoError(t, container.Terminate(ctx))
	})
	return client
}
