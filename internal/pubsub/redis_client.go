package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/quantfeed/avwap/internal/config"
	"github.com/quantfeed/avwap/internal/storage"
	"github.com/quantfeed/avwap/pkg/logger"
)

const (
	connectTimeout = 5 * time.Second

	// XReadGroup batch size and block interval for the consume loop
	readCount = 10
	readBlock = time.Second

	// Buffer on the channels handed to consumers
	chanBuffer = 100

	groupCreateAttempts = 3
)

// redisClient implements storage.RedisClient on top of go-redis
type redisClient struct {
	rdb *redis.Client
}

// NewRedisClient connects to Redis and verifies the connection before
// returning
func NewRedisClient(cfg config.RedisConfig) (storage.RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
	)

	return &redisClient{rdb: rdb}, nil
}

// encode marshals a value for storage or transport
func encode(value interface{}) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return data, nil
}

// PublishToStream appends a single entry to a stream under the given
// field name
func (r *redisClient) PublishToStream(ctx context.Context, stream string, key string, value interface{}) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	err = r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{key: string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}

	return nil
}

// PublishBatchToStream appends multiple entries to a stream in one
// pipelined round trip
func (r *redisClient) PublishBatchToStream(ctx context.Context, stream string, messages []map[string]interface{}) error {
	if len(messages) == 0 {
		return nil
	}

	pipe := r.rdb.Pipeline()
	for _, msg := range messages {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: msg,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish batch to stream %s: %w", stream, err)
	}

	return nil
}

// ConsumeFromStream reads a stream through a consumer group and emits
// entries on the returned channel until ctx is cancelled. The channel is
// closed when the read loop exits.
func (r *redisClient) ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan storage.StreamMessage, error) {
	if err := r.ensureGroup(ctx, stream, group); err != nil {
		// The read loop recovers from a missing group, so keep going
		logger.Warn("Could not create consumer group, read loop will retry",
			logger.ErrorField(err),
			logger.String("stream", stream),
			logger.String("group", group),
		)
	}

	out := make(chan storage.StreamMessage, chanBuffer)
	go r.readLoop(ctx, stream, group, consumer, out)
	return out, nil
}

// ensureGroup creates the consumer group, treating an already existing
// group as success. The stream itself is created when missing (MKSTREAM).
func (r *redisClient) ensureGroup(ctx context.Context, stream string, group string) error {
	var err error
	for attempt := 1; attempt <= groupCreateAttempts; attempt++ {
		err = r.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err == nil || strings.Contains(err.Error(), "BUSYGROUP") {
			logger.Debug("Consumer group ready",
				logger.String("stream", stream),
				logger.String("group", group),
			)
			return nil
		}

		logger.Warn("Failed to create consumer group, retrying",
			logger.ErrorField(err),
			logger.String("stream", stream),
			logger.String("group", group),
			logger.Int("attempt", attempt),
		)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return err
}

func (r *redisClient) readLoop(ctx context.Context, stream string, group string, consumer string, out chan<- storage.StreamMessage) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := r.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    readCount,
			Block:    readBlock,
		}).Result()

		if err != nil {
			// redis.Nil is the block interval elapsing with nothing new
			if errors.Is(err, redis.Nil) {
				continue
			}

			// NOGROUP: the group (or the whole stream) was deleted
			// underneath us, so recreate and resume
			if strings.Contains(err.Error(), "NOGROUP") {
				logger.Warn("Consumer group gone, recreating",
					logger.String("stream", stream),
					logger.String("group", group),
				)
				if createErr := r.ensureGroup(ctx, stream, group); createErr != nil {
					time.Sleep(2 * time.Second)
				}
				continue
			}

			logger.Error("Error reading from stream",
				logger.ErrorField(err),
				logger.String("stream", stream),
			)
			time.Sleep(time.Second)
			continue
		}

		for _, result := range streams {
			for _, message := range result.Messages {
				msg := storage.StreamMessage{
					ID:     message.ID,
					Stream: result.Stream,
					Values: message.Values,
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// AcknowledgeMessage marks a stream entry as processed for the group
func (r *redisClient) AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error {
	return r.rdb.XAck(ctx, stream, group, id).Err()
}

// Set stores a value as JSON under the key with the given TTL
func (r *redisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, key, data, ttl).Err()
}

// Get returns the raw value for a key, or "" when the key is absent
func (r *redisClient) Get(ctx context.Context, key string) (string, error) {
	result, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return result, err
}

// GetJSON unmarshals the value stored at key into dest. A missing key
// leaves dest untouched.
func (r *redisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Exists reports whether the key is present
func (r *redisClient) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.rdb.Exists(ctx, key).Result()
	return count > 0, err
}

// Publish sends a message to a pub/sub channel as JSON
func (r *redisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := encode(message)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, channel, data).Err()
}

// Subscribe listens on the given pub/sub channels until ctx is
// cancelled. The returned channel is closed when the subscription ends.
func (r *redisClient) Subscribe(ctx context.Context, channels ...string) (<-chan storage.PubSubMessage, error) {
	sub := r.rdb.Subscribe(ctx, channels...)
	out := make(chan storage.PubSubMessage, chanBuffer)

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			psMsg := storage.PubSubMessage{
				Channel: msg.Channel,
				Message: msg.Payload,
			}
			select {
			case out <- psMsg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close closes the Redis connection
func (r *redisClient) Close() error {
	return r.rdb.Close()
}
