package catalog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trogers1052/twstock-service/internal/models"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLoader(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	t.Run("miss loads from next and stores the snapshot", func(t *testing.T) {
		require.NoError(t, client.FlushAll(ctx).Err())
		next := &countingLoader{entries: []models.CatalogEntry{otc("6488.TWO", "環球晶")}}
		loader := NewRedisLoader(client, "", time.Minute, next, nil)

		entries, err := loader.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		assert.Equal(t, 1, next.calls)

		ttl, err := client.TTL(ctx, DefaultRedisKey).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))

		entries, err = loader.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "6488.TWO", entries[0].Symbol)
		assert.Equal(t, 1, next.calls, "second load should hit redis")
	})

	t.Run("hit never touches next", func(t *testing.T) {
		require.NoError(t, client.FlushAll(ctx).Err())
		payload, _ := json.Marshal([]models.CatalogEntry{listed("2330.TW", "台積電")})
		require.NoError(t, client.Set(ctx, "custom", payload, 0).Err())

		next := &countingLoader{}
		entries, err := NewRedisLoader(client, "custom", time.Minute, next, nil).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.MarketListed, entries[0].Market)
		assert.Zero(t, next.calls)
	})

	t.Run("corrupt snapshot is replaced", func(t *testing.T) {
		require.NoError(t, client.FlushAll(ctx).Err())
		require.NoError(t, client.Set(ctx, DefaultRedisKey, "not json", 0).Err())

		next := &countingLoader{entries: []models.CatalogEntry{otc("8299.TWO", "群聯")}}
		entries, err := NewRedisLoader(client, "", time.Minute, next, nil).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "8299.TWO", entries[0].Symbol)
	})
}
