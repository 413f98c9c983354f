// +build ignore

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	eventsStream     = "stream:dataset:events"
	invalidateStream = "stream:datasets:invalidate"
)

type datasetEvent struct {
	Type      string    `json:"type"`
	DatasetID int64     `json:"dataset_id,omitempty"`
	At        time.Time `json:"at"`
}

type cacheInvalidation struct {
	Pattern   string `json:"pattern"`
	DatasetID int64  `json:"dataset_id"`
}

// Публикует событие датасета и ждет, пока воркер сбросит кеш после импорта.
//
//	go run scripts/test_publish.go -dataset 3 -type field_mapping_changed
func main() {
	redisAddr := flag.String("redis", "localhost:6379", "Redis address for streams")
	datasetID := flag.Int64("dataset", 1, "Dataset ID")
	eventType := flag.String("type", "dataset_saved", "dataset_saved, field_mapping_changed or sync_tick")
	wait := flag.Duration("wait", 60*time.Second, "How long to wait for the import")
	flag.Parse()

	client := redis.NewClient(&redis.Options{Addr: *redisAddr})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// читаем инвалидации только после публикации события
	lastID := "$"
	if msgs, err := client.XRevRangeN(ctx, invalidateStream, "+", "-", 1).Result(); err == nil && len(msgs) > 0 {
		lastID = msgs[0].ID
	}

	event := datasetEvent{Type: *eventType, DatasetID: *datasetID, At: time.Now().UTC()}
	data, err := json.Marshal(event)
	if err != nil {
		log.Fatalf("Failed to marshal event: %v", err)
	}

	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: eventsStream,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		log.Fatalf("Failed to publish event: %v", err)
	}

	fmt.Printf("Event published\n")
	fmt.Printf("   Stream: %s\n", eventsStream)
	fmt.Printf("   Message ID: %s\n", id)
	fmt.Printf("   Type: %s, dataset: %d\n", event.Type, event.DatasetID)
	fmt.Printf("\nWaiting for cache invalidation in %s...\n", invalidateStream)

	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		results, err := client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{invalidateStream, lastID},
			Count:   10,
			Block:   time.Second,
		}).Result()
		if err != nil {
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				raw, ok := msg.Values["data"].(string)
				if !ok {
					continue
				}
				var inv cacheInvalidation
				if err := json.Unmarshal([]byte(raw), &inv); err != nil {
					continue
				}
				if inv.DatasetID == *datasetID {
					fmt.Printf("\nDataset imported, cache pattern %s invalidated\n", inv.Pattern)
					return
				}
			}
		}
	}
	fmt.Println("Timeout waiting for the import")
}
