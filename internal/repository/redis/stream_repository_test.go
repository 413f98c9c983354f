package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/domain"
	redisRepo "github.com/openkaarten-service/internal/repository/redis"
)

const (
	testEventsStream = "test:stream:dataset:events"
	testInvalidate   = "test:stream:datasets:invalidate"
)

// getTestRedisClient creates a Redis client for testing
func getTestRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     "localhost:6379",
		Password: "",
		DB:       1, // Use DB 1 for tests
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for integration tests: %v", err)
	}

	client.Del(ctx, testEventsStream, testInvalidate)

	return client
}

func TestStreamRepository_CreateConsumerGroup(t *testing.T) {
	client := getTestRedisClient(t)
	defer client.Close()

	repo := redisRepo.NewStreamRepository(client, 100*time.Millisecond, zap.NewNop())
	ctx := context.Background()
	defer client.Del(ctx, testEventsStream)

	err := repo.CreateConsumerGroup(ctx, testEventsStream, "test-group")
	require.NoError(t, err)

	groups, err := client.XInfoGroups(ctx, testEventsStream).Result()
	require.NoError(t, err)
	assert.Len(t, groups, 1)
	assert.Equal(t, "test-group", groups[0].Name)

	// BUSYGROUP is not an error
	err = repo.CreateConsumerGroup(ctx, testEventsStream, "test-group")
	assert.NoError(t, err)
}

func TestStreamRepository_PublishToStream(t *testing.T) {
	client := getTestRedisClient(t)
	defer client.Close()

	repo := redisRepo.NewStreamRepository(client, 100*time.Millisecond, zap.NewNop())
	ctx := context.Background()
	defer client.Del(ctx, testInvalidate)

	event := domain.CacheInvalidation{Pattern: "datasets:*", DatasetID: 7, At: time.Now().UTC()}
	require.NoError(t, repo.PublishToStream(ctx, testInvalidate, event))

	messages, err := client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{testInvalidate, "0"},
		Count:   1,
	}).Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Len(t, messages[0].Messages, 1)

	dataStr, ok := messages[0].Messages[0].Values["data"].(string)
	require.True(t, ok)

	var received domain.CacheInvalidation
	require.NoError(t, json.Unmarshal([]byte(dataStr), &received))
	assert.Equal(t, "datasets:*", received.Pattern)
	assert.Equal(t, int64(7), received.DatasetID)
}

func TestStreamRepository_ConsumeBatchAndAck(t *testing.T) {
	client := getTestRedisClient(t)
	defer client.Close()

	repo := redisRepo.NewStreamRepository(client, 100*time.Millisecond, zap.NewNop())
	ctx := context.Background()
	defer client.Del(ctx, testEventsStream)

	group := "test-batch-group"
	require.NoError(t, repo.CreateConsumerGroup(ctx, testEventsStream, group))

	t.Run("empty stream returns no messages", func(t *testing.T) {
		messages, err := repo.ConsumeBatch(ctx, testEventsStream, group, "consumer-1", 10)
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	for _, id := range []int64{1, 2, 3} {
		ev := domain.DatasetEvent{Type: domain.EventDatasetSaved, DatasetID: id, At: time.Now().UTC()}
		require.NoError(t, repo.PublishToStream(ctx, testEventsStream, ev))
	}

	messages, err := repo.ConsumeBatch(ctx, testEventsStream, group, "consumer-1", 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	var first domain.DatasetEvent
	require.NoError(t, json.Unmarshal([]byte(messages[0].Data), &first))
	assert.Equal(t, int64(1), first.DatasetID)
	assert.Equal(t, domain.EventDatasetSaved, first.Type)

	pending, err := client.XPending(ctx, testEventsStream, group).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending.Count)

	require.NoError(t, repo.AckMessages(ctx, testEventsStream, group, []string{messages[0].ID, messages[1].ID}))

	pending, err = client.XPending(ctx, testEventsStream, group).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)

	rest, err := repo.ConsumeBatch(ctx, testEventsStream, group, "consumer-1", 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.NoError(t, repo.AckMessage(ctx, testEventsStream, group, rest[0].ID))

	assert.NoError(t, repo.AckMessages(ctx, testEventsStream, group, nil))
}
