//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

/* Test Helpers for Redis Integration Tests
 * Following the pattern from: https://eltonminetto.dev/post/2024-02-15-using-test-helpers/
 */

// RedisContainer holds the Redis testcontainer and connection details
type RedisContainer struct {
	Container *testcontainersredis.RedisContainer
	URL       string
}

// SetupRedisContainer creates and starts a Redis testcontainer
func SetupRedisContainer(t *testing.T, ctx context.Context) (*RedisContainer, func()) {
	t.Helper()

	redisContainer, err := testcontainersredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start Redis container")

	url, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get Redis connection string")

	rc := &RedisContainer{
		Container: redisContainer,
		URL:       url,
	}

	cleanup := func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	}

	return rc, cleanup
}

// CreateTestQueue creates a queue with fast polling connected to the test container
func CreateTestQueue(t *testing.T, url, name string, opts ...Option) *Queue {
	t.Helper()

	opts = append([]Option{WithPollInterval(20 * time.Millisecond)}, opts...)
	q, err := NewFromURL(context.Background(), url, name, opts...)
	require.NoError(t, err, "failed to create Redis queue")

	return q
}

// KeyExists checks if a Redis key exists
func KeyExists(t *testing.T, url string, key string) bool {
	t.Helper()

	client := createRedisClient(t, url)
	defer client.Close()

	exists, err := client.Exists(context.Background(), key).Result()
	require.NoError(t, err)

	return exists > 0
}

// GetKeyTTL returns the TTL of a Redis key in seconds
func GetKeyTTL(t *testing.T, url string, key string) int64 {
	t.Helper()

	client := createRedisClient(t, url)
	defer client.Close()

	ttl, err := client.TTL(context.Background(), key).Result()
	require.NoError(t, err)

	return int64(ttl.Seconds())
}

// createRedisClient creates a direct Redis client for testing helpers
func createRedisClient(t *testing.T, url string) *goredis.Client {
	t.Helper()

	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	return goredis.NewClient(opts)
}
