package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/quantfeed/avwap/internal/config"
	"github.com/quantfeed/avwap/internal/models"
	"github.com/quantfeed/avwap/internal/storage"
	"github.com/quantfeed/avwap/pkg/logger"
)

// BridgeConfig holds configuration for the stream bridge
type BridgeConfig struct {
	Stream       string        // Stream name for finalized bars (default: "bars.finalized")
	BatchSize    int           // Batch size for stream writes (default: 100)
	BatchTimeout time.Duration // Timeout for batching bars (default: 100ms)
}

// DefaultBridgeConfig returns default configuration
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Stream:       "bars.finalized",
		BatchSize:    100,
		BatchTimeout: 100 * time.Millisecond,
	}
}

// BridgeConfigFromEngineConfig builds a bridge configuration from the
// engine config so bridged bars land on the stream the consumer reads.
func BridgeConfigFromEngineConfig(cfg config.EngineConfig) BridgeConfig {
	bridgeConfig := DefaultBridgeConfig()
	if cfg.BarStream != "" {
		bridgeConfig.Stream = cfg.BarStream
	}
	return bridgeConfig
}

// StreamBridge drains a bar channel into a Redis stream in batches. It sits
// between a direct feed and the stream consumer so both feed modes share the
// same ingest path.
type StreamBridge struct {
	config BridgeConfig
	redis  storage.RedisClient
	bars   <-chan *models.Bar

	batch   []*models.Bar
	batchMu sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewStreamBridge creates a bridge from the given bar channel to Redis
func NewStreamBridge(redis storage.RedisClient, bars <-chan *models.Bar, config BridgeConfig) *StreamBridge {
	ctx, cancel := context.WithCancel(context.Background())

	return &StreamBridge{
		config: config,
		redis:  redis,
		bars:   bars,
		batch:  make([]*models.Bar, 0, config.BatchSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the bridge
func (b *StreamBridge) Start() error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bridge is already running")
	}
	b.running = true
	b.mu.Unlock()

	logger.Info("Starting stream bridge",
		logger.String("stream", b.config.Stream),
		logger.Int("batch_size", b.config.BatchSize),
	)

	b.wg.Add(1)
	go b.run()

	return nil
}

// Stop stops the bridge and flushes any buffered bars
func (b *StreamBridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	logger.Info("Stopping stream bridge")
	b.cancel()
	b.wg.Wait()

	b.flush()
	logger.Info("Stream bridge stopped")
}

// IsRunning returns whether the bridge is running
func (b *StreamBridge) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// run drains the bar channel, flushing on batch size or timeout
func (b *StreamBridge) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case bar, ok := <-b.bars:
			if !ok {
				// Feed closed, flush what is left
				b.flush()
				return
			}

			if bar == nil {
				continue
			}
			if err := bar.Validate(); err != nil {
				logger.Warn("Invalid bar, skipping",
					logger.ErrorField(err),
					logger.String("symbol", bar.Symbol),
				)
				continue
			}

			b.batchMu.Lock()
			b.batch = append(b.batch, bar)
			full := len(b.batch) >= b.config.BatchSize
			b.batchMu.Unlock()

			if full {
				b.flush()
			}
		case <-ticker.C:
			b.flush()
		}
	}
}

// flush publishes the current batch to the stream
func (b *StreamBridge) flush() {
	b.batchMu.Lock()
	if len(b.batch) == 0 {
		b.batchMu.Unlock()
		return
	}

	batch := make([]*models.Bar, len(b.batch))
	copy(batch, b.batch)
	b.batch = b.batch[:0]
	b.batchMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	messages := make([]map[string]interface{}, 0, len(batch))
	for _, bar := range batch {
		barJSON, err := json.Marshal(bar)
		if err != nil {
			logger.Error("Failed to marshal bar",
				logger.ErrorField(err),
				logger.String("symbol", bar.Symbol),
			)
			continue
		}

		messages = append(messages, map[string]interface{}{
			"bar": string(barJSON),
		})
	}

	if len(messages) == 0 {
		return
	}

	if err := b.redis.PublishBatchToStream(ctx, b.config.Stream, messages); err != nil {
		logger.Error("Failed to publish bar batch",
			logger.ErrorField(err),
			logger.String("stream", b.config.Stream),
			logger.Int("count", len(messages)),
		)
		logger.ErrorsTotal.WithLabelValues("stream_bridge", "publish").Inc()
		return
	}

	logger.Debug("Published bar batch",
		logger.String("stream", b.config.Stream),
		logger.Int("count", len(messages)),
	)
}
