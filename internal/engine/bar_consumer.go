package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quantfeed/avwap/internal/config"
	"github.com/quantfeed/avwap/internal/models"
	"github.com/quantfeed/avwap/internal/storage"
	"github.com/quantfeed/avwap/pkg/logger"
)

var consumerBatchDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "avwap_batch_duration_seconds",
		Help: "Time to process one consumed batch of bars",
	},
	[]string{"stream"},
)

// BarProcessorInterface defines the interface for processing bars
type BarProcessorInterface interface {
	ProcessBar(bar *models.Bar) error
}

// ConsumerConfig holds configuration for the bar stream consumer
type ConsumerConfig struct {
	StreamName    string
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int // Number of messages to process before acknowledging
	AckTimeout    time.Duration
}

// ConsumerConfigFromEngineConfig creates a ConsumerConfig from EngineConfig
func ConsumerConfigFromEngineConfig(cfg config.EngineConfig, consumerName string) ConsumerConfig {
	return ConsumerConfig{
		StreamName:    cfg.BarStream,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  consumerName,
		BatchSize:     cfg.BatchSize,
		AckTimeout:    cfg.AckTimeout,
	}
}

// BarConsumer consumes finalized bars from the Redis stream and feeds them to
// a bar processor
type BarConsumer struct {
	config    ConsumerConfig
	redis     storage.RedisClient
	processor BarProcessorInterface
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	stats     ConsumerStats
}

// ConsumerStats holds statistics about the consumer
type ConsumerStats struct {
	BarsProcessed int64
	BarsAcked     int64
	BarsFailed    int64
	LastBarTime   time.Time
	mu            sync.RWMutex
}

// NewBarConsumer creates a new bar consumer
func NewBarConsumer(redis storage.RedisClient, config ConsumerConfig) *BarConsumer {
	ctx, cancel := context.WithCancel(context.Background())

	return &BarConsumer{
		config: config,
		redis:  redis,
		ctx:    ctx,
		cancel: cancel,
		stats:  ConsumerStats{},
	}
}

// SetProcessor sets the bar processor
func (c *BarConsumer) SetProcessor(processor BarProcessorInterface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processor = processor
}

// Start starts consuming from the stream
func (c *BarConsumer) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer is already running")
	}
	c.running = true
	c.mu.Unlock()

	logger.Info("Starting bar consumer",
		logger.String("stream", c.config.StreamName),
		logger.String("consumer_group", c.config.ConsumerGroup),
		logger.String("consumer_name", c.config.ConsumerName),
	)

	c.wg.Add(1)
	go c.consumeStream(c.config.StreamName)

	return nil
}

// Stop stops the consumer
func (c *BarConsumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	logger.Info("Stopping bar consumer")
	c.cancel()
	c.wg.Wait()
	logger.Info("Bar consumer stopped")
}

// IsRunning returns whether the consumer is running
func (c *BarConsumer) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// GetStats returns consumer statistics
func (c *BarConsumer) GetStats() ConsumerStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	// Return a copy to avoid lock value copy warning
	return ConsumerStats{
		BarsProcessed: c.stats.BarsProcessed,
		BarsAcked:     c.stats.BarsAcked,
		BarsFailed:    c.stats.BarsFailed,
		LastBarTime:   c.stats.LastBarTime,
	}
}

// consumeStream consumes messages from the stream
func (c *BarConsumer) consumeStream(stream string) {
	defer c.wg.Done()

	messageChan, err := c.redis.ConsumeFromStream(c.ctx, stream, c.config.ConsumerGroup, c.config.ConsumerName)
	if err != nil {
		logger.Error("Failed to start consuming from stream",
			logger.ErrorField(err),
			logger.String("stream", stream),
		)
		return
	}

	batch := make([]storage.StreamMessage, 0, c.config.BatchSize)
	ticker := time.NewTicker(c.config.AckTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			// Process remaining batch before exiting
			if len(batch) > 0 {
				c.processBatch(stream, batch)
			}
			return

		case msg, ok := <-messageChan:
			if !ok {
				logger.Warn("Message channel closed",
					logger.String("stream", stream),
				)
				return
			}

			batch = append(batch, msg)

			// Process batch if it's full
			if len(batch) >= c.config.BatchSize {
				c.processBatch(stream, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			// Process batch on timeout
			if len(batch) > 0 {
				c.processBatch(stream, batch)
				batch = batch[:0]
			}
		}
	}
}

// processBatch processes a batch of messages
func (c *BarConsumer) processBatch(stream string, messages []storage.StreamMessage) {
	if len(messages) == 0 {
		return
	}
	start := time.Now()

	// One trace ID per batch so failures within it can be correlated
	batchCtx := logger.WithTraceID(context.Background(), logger.NewTraceID())
	log := logger.WithContext(batchCtx)

	processed := make([]string, 0, len(messages))
	failed := make([]string, 0)

	for _, msg := range messages {
		bar, err := c.deserializeBar(msg)
		if err != nil {
			log.Error("Failed to deserialize bar",
				logger.ErrorField(err),
				logger.String("stream", stream),
				logger.String("message_id", msg.ID),
			)
			logger.ErrorsTotal.WithLabelValues("bar_consumer", "deserialize").Inc()
			failed = append(failed, msg.ID)
			c.incrementFailed()
			continue
		}

		c.mu.RLock()
		processor := c.processor
		c.mu.RUnlock()

		if processor == nil {
			log.Warn("No processor set, skipping bar",
				logger.String("symbol", bar.Symbol),
			)
			failed = append(failed, msg.ID)
			continue
		}

		err = processor.ProcessBar(bar)
		if err != nil {
			log.Error("Failed to process bar",
				logger.ErrorField(err),
				logger.String("symbol", bar.Symbol),
				logger.String("message_id", msg.ID),
			)
			logger.ErrorsTotal.WithLabelValues("bar_consumer", "process").Inc()
			failed = append(failed, msg.ID)
			c.incrementFailed()
			continue
		}

		processed = append(processed, msg.ID)
		c.incrementProcessed()
		c.updateLastBarTime(bar.End)
	}

	// Acknowledge successfully processed messages
	if len(processed) > 0 {
		c.acknowledgeMessages(stream, processed)
		c.incrementAcked(int64(len(processed)))
	}

	if len(failed) > 0 {
		log.Warn("Some bars failed to process",
			logger.Int("failed_count", len(failed)),
			logger.String("stream", stream),
		)
	}

	consumerBatchDuration.WithLabelValues(stream).Observe(time.Since(start).Seconds())
}

// deserializeBar deserializes a stream message into a Bar
func (c *BarConsumer) deserializeBar(msg storage.StreamMessage) (*models.Bar, error) {
	barJSON, ok := msg.Values["bar"].(string)
	if !ok {
		// Fall back to any string value
		for _, v := range msg.Values {
			if str, ok := v.(string); ok {
				barJSON = str
				break
			}
		}
		if barJSON == "" {
			return nil, fmt.Errorf("no bar data found in message")
		}
	}

	var bar models.Bar
	err := json.Unmarshal([]byte(barJSON), &bar)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal bar: %w", err)
	}

	return &bar, nil
}

// acknowledgeMessages acknowledges a batch of messages
func (c *BarConsumer) acknowledgeMessages(stream string, messageIDs []string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.AckTimeout)
	defer cancel()

	for _, id := range messageIDs {
		err := c.redis.AcknowledgeMessage(ctx, stream, c.config.ConsumerGroup, id)
		if err != nil {
			logger.Error("Failed to acknowledge message",
				logger.ErrorField(err),
				logger.String("stream", stream),
				logger.String("message_id", id),
			)
		}
	}
}

// incrementProcessed increments the processed counter
func (c *BarConsumer) incrementProcessed() {
	c.stats.mu.Lock()
	c.stats.BarsProcessed++
	c.stats.mu.Unlock()
}

// incrementAcked increments the acked counter
func (c *BarConsumer) incrementAcked(count int64) {
	c.stats.mu.Lock()
	c.stats.BarsAcked += count
	c.stats.mu.Unlock()
}

// incrementFailed increments the failed counter
func (c *BarConsumer) incrementFailed() {
	c.stats.mu.Lock()
	c.stats.BarsFailed++
	c.stats.mu.Unlock()
}

// updateLastBarTime updates the last bar timestamp
func (c *BarConsumer) updateLastBarTime(timestamp time.Time) {
	c.stats.mu.Lock()
	c.stats.LastBarTime = timestamp
	c.stats.mu.Unlock()
}
