package storage

import (
	"context"
	"time"

	"github.com/quantfeed/avwap/internal/models"
)

// ValueStore defines the interface for persisting computed indicator values
type ValueStore interface {
	// WriteValues writes computed indicator values to storage
	WriteValues(ctx context.Context, values []*models.IndicatorValue) error

	// Close closes the storage connection
	Close() error
}

// RedisClient defines the interface for Redis operations
type RedisClient interface {
	// Stream operations
	PublishToStream(ctx context.Context, stream string, key string, value interface{}) error
	PublishBatchToStream(ctx context.Context, stream string, messages []map[string]interface{}) error
	ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan StreamMessage, error)
	AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error

	// Key-value operations
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Exists(ctx context.Context, key string) (bool, error)

	// Pub/Sub operations
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error)

	// Close closes the Redis connection
	Close() error
}

// StreamMessage represents a message from a Redis stream
type StreamMessage struct {
	ID     string
	Stream string
	Values map[string]interface{}
}

// PubSubMessage represents a message from Redis pub/sub
type PubSubMessage struct {
	Channel string
	Message string
}
