// internal/journal/journal.go

// Package journal pushes room lifecycle events onto a Redis queue for the
// historian service to persist asynchronously, keeping the relay's hot
// path free of database work.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the relay journals into.
const DefaultQueueName = "mindspar_room_events"

// RoomEventRecord is the unit pushed onto the queue. Payload is the raw
// message data if any; the historian stores it opaquely.
type RoomEventRecord struct {
	RoomID    string          `json:"room_id"`
	PlayerID  uuid.UUID       `json:"player_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Journal wraps the Redis client and target queue. Construct one per
// process and pass it where needed; there is no package-level instance.
type Journal struct {
	rdb   *redis.Client
	queue string
}

// Connect builds a Journal from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
//   - JOURNAL_QUEUE_NAME (default DefaultQueueName)
//
// It pings Redis with a short timeout so a missing server fails fast.
func Connect() (*Journal, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Journal{
		rdb:   rdb,
		queue: getEnv("JOURNAL_QUEUE_NAME", DefaultQueueName),
	}, nil
}

// Publish serializes the record and pushes it onto the queue. Quick
// network send only; persistence happens downstream.
func (j *Journal) Publish(ctx context.Context, rec RoomEventRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal RoomEventRecord: %w", err)
	}
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", j.queue, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (j *Journal) Close() error {
	return j.rdb.Close()
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
