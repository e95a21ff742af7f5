package engine

import (
	"context"
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

var publishTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "avwap_publish_total",
		Help: "Total number of value snapshot publishes by status",
	},
	[]string{"status"},
)

// PublisherConfig holds configuration for the value publisher
type PublisherConfig struct {
	ValueKeyPrefix string        // Redis key prefix for cached snapshots
	ValueTTL       time.Duration // Expiry on cached snapshots
	UpdateChannel  string        // Pub/sub channel for update notifications
	ValueStream    string        // Durable snapshot stream (empty = disabled)
	StatsInterval  time.Duration // How often to log publish stats
}

// DefaultPublisherConfig returns default configuration
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		ValueKeyPrefix: "avwap:",
		ValueTTL:       1 * time.Hour,
		UpdateChannel:  "avwap.updated",
		ValueStream:    "",
		StatsInterval:  1 * time.Minute,
	}
}

// PublisherConfigFromEngineConfig creates a PublisherConfig from EngineConfig
func PublisherConfigFromEngineConfig(cfg config.EngineConfig) PublisherConfig {
	publisherConfig := DefaultPublisherConfig()
	publisherConfig.ValueTTL = cfg.ValueTTL
	publisherConfig.UpdateChannel = cfg.PublishChannel
	publisherConfig.ValueStream = cfg.ValueStream
	return publisherConfig
}

// PublisherStats holds statistics about the publisher
type PublisherStats struct {
	SnapshotsPublished int64
	PublishErrors      int64
	LastPublishTime    time.Time
	mu                 sync.RWMutex
}

// Publisher publishes computed values to Redis and optionally persists them
type Publisher struct {
	config  PublisherConfig
	redis   storage.RedisClient
	store   storage.ValueStore
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	stats   PublisherStats
}

// NewPublisher creates a new value publisher
func NewPublisher(redis storage.RedisClient, config PublisherConfig) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())

	return &Publisher{
		config: config,
		redis:  redis,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetValueStore sets an optional store that persists published values
func (p *Publisher) SetValueStore(store storage.ValueStore) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store = store
}

// Start starts the publisher
func (p *Publisher) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("publisher is already running")
	}
	p.running = true
	p.mu.Unlock()

	logger.Info("Starting value publisher",
		logger.String("key_prefix", p.config.ValueKeyPrefix),
		logger.String("update_channel", p.config.UpdateChannel),
		logger.Duration("value_ttl", p.config.ValueTTL),
	)

	p.wg.Add(1)
	go p.statsLoop()

	return nil
}

// Stop stops the publisher
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	logger.Info("Stopping value publisher")
	p.cancel()
	p.wg.Wait()
	logger.Info("Value publisher stopped")
}

// IsRunning returns whether the publisher is running
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// GetStats returns publisher statistics
func (p *Publisher) GetStats() PublisherStats {
	p.stats.mu.RLock()
	defer p.stats.mu.RUnlock()
	return PublisherStats{
		SnapshotsPublished: p.stats.SnapshotsPublished,
		PublishErrors:      p.stats.PublishErrors,
		LastPublishTime:    p.stats.LastPublishTime,
	}
}

// PublishValues publishes a symbol's computed values. The cached snapshot in
// Redis is the source of truth; the pub/sub notification, the durable stream
// and persistence are best effort.
func (p *Publisher) PublishValues(symbol string, values []*models.IndicatorValue) error {
	if len(values) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snapshot := models.ValueSnapshot{
		Symbol:    symbol,
		Timestamp: values[0].Timestamp,
		Values:    make(map[string]float64, len(values)),
	}
	for _, value := range values {
		snapshot.Values[value.Indicator] = value.Value
	}

	key := p.config.ValueKeyPrefix + symbol
	if err := p.redis.Set(ctx, key, snapshot, p.config.ValueTTL); err != nil {
		p.incrementErrors()
		publishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to cache values for %s: %w", symbol, err)
	}

	if err := p.redis.Publish(ctx, p.config.UpdateChannel, snapshot); err != nil {
		logger.Warn("Failed to publish update notification",
			logger.ErrorField(err),
			logger.String("symbol", symbol),
		)
	}

	if p.config.ValueStream != "" {
		if err := p.redis.PublishToStream(ctx, p.config.ValueStream, "snapshot", snapshot); err != nil {
			logger.Warn("Failed to append snapshot to value stream",
				logger.ErrorField(err),
				logger.String("symbol", symbol),
				logger.String("stream", p.config.ValueStream),
			)
		}
	}

	p.mu.RLock()
	store := p.store
	p.mu.RUnlock()

	if store != nil {
		if err := store.WriteValues(ctx, values); err != nil {
			logger.Warn("Failed to enqueue values for persistence",
				logger.ErrorField(err),
				logger.String("symbol", symbol),
			)
		}
	}

	p.incrementPublished()
	publishTotal.WithLabelValues("success").Inc()
	return nil
}

// statsLoop periodically logs publish statistics
func (p *Publisher) statsLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			stats := p.GetStats()
			logger.Debug("Publisher stats",
				logger.Int64("snapshots_published", stats.SnapshotsPublished),
				logger.Int64("publish_errors", stats.PublishErrors),
				logger.Time("last_publish", stats.LastPublishTime),
			)
		}
	}
}

// incrementPublished increments the published counter
func (p *Publisher) incrementPublished() {
	p.stats.mu.Lock()
	p.stats.SnapshotsPublished++
	p.stats.LastPublishTime = time.Now()
	p.stats.mu.Unlock()
}

// incrementErrors increments the error counter
func (p *Publisher) incrementErrors() {
	p.stats.mu.Lock()
	p.stats.PublishErrors++
	p.stats.mu.Unlock()
}
