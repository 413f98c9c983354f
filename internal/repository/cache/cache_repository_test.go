package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/repository/cache"
)

func getTestRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for integration tests: %v", err)
	}
	return client
}

func TestCacheRepository(t *testing.T) {
	client := getTestRedisClient(t)
	defer client.Close()

	repo := cache.NewCacheRepositoryWithClient(client, zap.NewNop())
	ctx := context.Background()

	t.Run("miss returns nil without error", func(t *testing.T) {
		val, err := repo.Get(ctx, "test:datasets:missing")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("set get delete", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "test:datasets:id:1:geojson:wgs84", []byte(`{"type":"FeatureCollection"}`), time.Minute))

		val, err := repo.Get(ctx, "test:datasets:id:1:geojson:wgs84")
		require.NoError(t, err)
		assert.Equal(t, `{"type":"FeatureCollection"}`, string(val))

		ok, err := repo.Exists(ctx, "test:datasets:id:1:geojson:wgs84")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, repo.Delete(ctx, "test:datasets:id:1:geojson:wgs84"))
		ok, err = repo.Exists(ctx, "test:datasets:id:1:geojson:wgs84")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete by pattern", func(t *testing.T) {
		for _, key := range []string{
			"test:datasets:id:1:geojson:wgs84",
			"test:datasets:id:1:kml:rd",
			"test:datasets:id:2:geojson:wgs84",
		} {
			require.NoError(t, repo.Set(ctx, key, []byte("x"), time.Minute))
		}
		defer client.Del(ctx, "test:datasets:id:2:geojson:wgs84")

		n, err := repo.DeletePattern(ctx, "test:datasets:id:1:*")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		ok, err := repo.Exists(ctx, "test:datasets:id:2:geojson:wgs84")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
