package engine

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/quantfeed/avwap/internal/config"
	"github.com/quantfeed/avwap/internal/models"
	"github.com/quantfeed/avwap/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBarProcessor implements BarProcessorInterface for testing
type mockBarProcessor struct {
	mu         sync.Mutex
	bars       []*models.Bar
	FailSymbol string // bars for this symbol return an error
}

func (m *mockBarProcessor) ProcessBar(bar *models.Bar) error {
	if m.FailSymbol != "" && bar.Symbol == m.FailSymbol {
		return fmt.Errorf("process failed for %s", bar.Symbol)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars = append(m.bars, bar)
	return nil
}

func (m *mockBarProcessor) GetBars() []*models.Bar {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*models.Bar, len(m.bars))
	copy(result, m.bars)
	return result
}

func barStreamMessage(t *testing.T, id string, bar *models.Bar) storage.StreamMessage {
	t.Helper()
	barJSON, err := json.Marshal(bar)
	require.NoError(t, err)
	return storage.StreamMessage{
		ID:     id,
		Stream: "test-bars",
		Values: map[string]interface{}{"bar": string(barJSON)},
	}
}

func TestBarConsumer_DeserializeBar(t *testing.T) {
	consumer := &BarConsumer{
		config: ConsumerConfig{
			StreamName:    "test-bars",
			ConsumerGroup: "test-group",
			ConsumerName:  "test-consumer",
			BatchSize:     10,
			AckTimeout:    time.Second,
		},
	}

	end := time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC)
	bar := makeBar("AAPL", end, 150.0, 151.0, 149.0, 150.5, 1000)

	deserialized, err := consumer.deserializeBar(barStreamMessage(t, "1-0", bar))
	require.NoError(t, err)
	assert.Equal(t, "AAPL", deserialized.Symbol)
	assert.True(t, deserialized.End.Equal(end))
	assert.Equal(t, 150.0, deserialized.Open)
	assert.Equal(t, 151.0, deserialized.High)
	assert.Equal(t, int64(1000), deserialized.Volume)
}

func TestBarConsumer_DeserializeBar_Fallback(t *testing.T) {
	consumer := &BarConsumer{
		config: ConsumerConfig{StreamName: "test-bars"},
	}

	end := time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC)
	barJSON, err := json.Marshal(makeBar("AAPL", end, 150.0, 151.0, 149.0, 150.5, 1000))
	require.NoError(t, err)

	// Bar stored under a different key still deserializes
	deserialized, err := consumer.deserializeBar(storage.StreamMessage{
		ID:     "1-0",
		Stream: "test-bars",
		Values: map[string]interface{}{"payload": string(barJSON)},
	})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", deserialized.Symbol)

	_, err = consumer.deserializeBar(storage.StreamMessage{
		ID:     "2-0",
		Stream: "test-bars",
		Values: map[string]interface{}{"count": 3},
	})
	assert.Error(t, err)

	_, err = consumer.deserializeBar(storage.StreamMessage{
		ID:     "3-0",
		Stream: "test-bars",
		Values: map[string]interface{}{"bar": "not json"},
	})
	assert.Error(t, err)
}

func TestBarConsumer_ProcessBatch(t *testing.T) {
	processor := &mockBarProcessor{}
	mockRedis := storage.NewMockRedisClient()

	consumer := &BarConsumer{
		config: ConsumerConfig{
			StreamName:    "test-bars",
			ConsumerGroup: "test-group",
			BatchSize:     10,
			AckTimeout:    time.Second,
		},
		redis:     mockRedis,
		processor: processor,
	}

	end1 := time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC)
	end2 := end1.Add(time.Minute)
	messages := []storage.StreamMessage{
		barStreamMessage(t, "1-0", makeBar("AAPL", end1, 150.0, 151.0, 149.0, 150.5, 1000)),
		barStreamMessage(t, "2-0", makeBar("MSFT", end2, 300.0, 301.0, 299.0, 300.5, 2000)),
	}

	consumer.processBatch("test-bars", messages)

	bars := processor.GetBars()
	require.Len(t, bars, 2)
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, "MSFT", bars[1].Symbol)

	stats := consumer.GetStats()
	assert.Equal(t, int64(2), stats.BarsProcessed)
	assert.Equal(t, int64(2), stats.BarsAcked)
	assert.Equal(t, int64(0), stats.BarsFailed)
	assert.True(t, stats.LastBarTime.Equal(end2))
}

func TestBarConsumer_ProcessBatch_MixedFailures(t *testing.T) {
	processor := &mockBarProcessor{FailSymbol: "BADX"}
	mockRedis := storage.NewMockRedisClient()

	consumer := &BarConsumer{
		config: ConsumerConfig{
			StreamName:    "test-bars",
			ConsumerGroup: "test-group",
			BatchSize:     10,
			AckTimeout:    time.Second,
		},
		redis:     mockRedis,
		processor: processor,
	}

	end := time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC)
	messages := []storage.StreamMessage{
		{
			ID:     "1-0",
			Stream: "test-bars",
			Values: map[string]interface{}{"bar": "not json"},
		},
		barStreamMessage(t, "2-0", makeBar("BADX", end, 10.0, 11.0, 9.0, 10.5, 500)),
		barStreamMessage(t, "3-0", makeBar("AAPL", end.Add(time.Minute), 150.0, 151.0, 149.0, 150.5, 1000)),
	}

	consumer.processBatch("test-bars", messages)

	bars := processor.GetBars()
	require.Len(t, bars, 1)
	assert.Equal(t, "AAPL", bars[0].Symbol)

	stats := consumer.GetStats()
	assert.Equal(t, int64(1), stats.BarsProcessed)
	assert.Equal(t, int64(1), stats.BarsAcked)
	assert.Equal(t, int64(2), stats.BarsFailed)
}

func TestBarConsumer_ProcessBatch_NoProcessor(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()

	consumer := &BarConsumer{
		config: ConsumerConfig{
			StreamName:    "test-bars",
			ConsumerGroup: "test-group",
			AckTimeout:    time.Second,
		},
		redis: mockRedis,
	}

	end := time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC)
	consumer.processBatch("test-bars", []storage.StreamMessage{
		barStreamMessage(t, "1-0", makeBar("AAPL", end, 150.0, 151.0, 149.0, 150.5, 1000)),
	})

	stats := consumer.GetStats()
	assert.Equal(t, int64(0), stats.BarsProcessed)
	assert.Equal(t, int64(0), stats.BarsAcked)
}

func TestBarConsumer_Stats(t *testing.T) {
	consumer := &BarConsumer{
		config: ConsumerConfig{StreamName: "test-bars"},
	}

	stats := consumer.GetStats()
	assert.Equal(t, int64(0), stats.BarsProcessed)
	assert.Equal(t, int64(0), stats.BarsAcked)
	assert.Equal(t, int64(0), stats.BarsFailed)

	consumer.incrementProcessed()
	consumer.incrementAcked(5)
	consumer.incrementFailed()
	end := time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC)
	consumer.updateLastBarTime(end)

	stats = consumer.GetStats()
	assert.Equal(t, int64(1), stats.BarsProcessed)
	assert.Equal(t, int64(5), stats.BarsAcked)
	assert.Equal(t, int64(1), stats.BarsFailed)
	assert.True(t, stats.LastBarTime.Equal(end))
}

func TestBarConsumer_ConsumesFromStream(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()

	end := time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		bar := makeBar("AAPL", end.Add(time.Duration(i)*time.Minute),
			150.0+float64(i), 151.0+float64(i), 149.0+float64(i), 150.5+float64(i), 1000)
		mockRedis.StreamData = append(mockRedis.StreamData, barStreamMessage(t, fmt.Sprintf("%d-0", i), bar))
	}

	processor := &mockBarProcessor{}
	consumer := NewBarConsumer(mockRedis, ConsumerConfig{
		StreamName:    "test-bars",
		ConsumerGroup: "test-group",
		ConsumerName:  "test-consumer",
		BatchSize:     2,
		AckTimeout:    50 * time.Millisecond,
	})
	consumer.SetProcessor(processor)

	require.NoError(t, consumer.Start())
	assert.True(t, consumer.IsRunning())

	err := consumer.Start()
	assert.Error(t, err, "second start should fail while running")

	time.Sleep(200 * time.Millisecond)
	consumer.Stop()
	assert.False(t, consumer.IsRunning())

	bars := processor.GetBars()
	require.Len(t, bars, 4)
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.True(t, bars[3].End.Equal(end.Add(3*time.Minute)))

	stats := consumer.GetStats()
	assert.Equal(t, int64(4), stats.BarsProcessed)
	assert.Equal(t, int64(4), stats.BarsAcked)
}

func TestBarConsumer_FeedsEngine(t *testing.T) {
	anchor := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	engine := NewEngine(fixedRegistry(t, "avwap_test", anchor))
	defer engine.Stop()

	mockRedis := storage.NewMockRedisClient()
	mockRedis.StreamData = append(mockRedis.StreamData,
		barStreamMessage(t, "1-0", makeBar("AAPL", anchor.Add(time.Minute), 150.0, 151.0, 149.0, 150.5, 1000)),
		barStreamMessage(t, "2-0", makeBar("AAPL", anchor.Add(2*time.Minute), 151.0, 152.0, 150.0, 151.5, 1000)),
	)

	consumer := NewBarConsumer(mockRedis, ConsumerConfig{
		StreamName:    "test-bars",
		ConsumerGroup: "test-group",
		ConsumerName:  "test-consumer",
		BatchSize:     2,
		AckTimeout:    50 * time.Millisecond,
	})
	consumer.SetProcessor(engine)

	require.NoError(t, consumer.Start())
	time.Sleep(200 * time.Millisecond)
	consumer.Stop()

	values, err := engine.GetValues("AAPL")
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.InDelta(t, 150.625, values["avwap_test"], 1e-9)
}

func TestConsumerConfigFromEngineConfig(t *testing.T) {
	cfg := config.EngineConfig{
		BarStream:     "bars.finalized",
		ConsumerGroup: "avwap",
		BatchSize:     25,
		AckTimeout:    2 * time.Second,
	}

	consumerConfig := ConsumerConfigFromEngineConfig(cfg, "avwap-1")
	assert.Equal(t, "bars.finalized", consumerConfig.StreamName)
	assert.Equal(t, "avwap", consumerConfig.ConsumerGroup)
	assert.Equal(t, "avwap-1", consumerConfig.ConsumerName)
	assert.Equal(t, 25, consumerConfig.BatchSize)
	assert.Equal(t, 2*time.Second, consumerConfig.AckTimeout)
}
