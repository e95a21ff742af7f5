package feed

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/quantfeed/avwap/internal/config"
	"github.com/quantfeed/avwap/internal/models"
	"github.com/quantfeed/avwap/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBar(symbol string, end time.Time, volume int64) *models.Bar {
	return &models.Bar{
		Symbol: symbol,
		Start:  end.Add(-time.Minute),
		End:    end,
		Open:   150.0,
		High:   151.0,
		Low:    149.0,
		Close:  150.5,
		Volume: volume,
	}
}

func TestStreamBridge_PublishesOnBatchSize(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	bars := make(chan *models.Bar, 10)

	config := DefaultBridgeConfig()
	config.BatchSize = 2
	config.BatchTimeout = 50 * time.Millisecond

	bridge := NewStreamBridge(mockRedis, bars, config)
	require.NoError(t, bridge.Start())
	defer bridge.Stop()

	end := time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC)
	bars <- testBar("AAPL", end, 1000)
	bars <- testBar("MSFT", end, 2000)

	time.Sleep(100 * time.Millisecond)

	require.GreaterOrEqual(t, len(mockRedis.StreamData), 2, "Bars should be published to stream")
	assert.Equal(t, "bars.finalized", mockRedis.StreamData[0].Stream)

	var published models.Bar
	raw, ok := mockRedis.StreamData[0].Values["bar"].(string)
	require.True(t, ok, "Message should carry the bar JSON under the bar field")
	require.NoError(t, json.Unmarshal([]byte(raw), &published))
	assert.Equal(t, "AAPL", published.Symbol)
	assert.Equal(t, int64(1000), published.Volume)
	assert.True(t, published.End.Equal(end))
}

func TestStreamBridge_FlushesOnTimeout(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	bars := make(chan *models.Bar, 10)

	config := DefaultBridgeConfig()
	config.BatchSize = 5
	config.BatchTimeout = 50 * time.Millisecond

	bridge := NewStreamBridge(mockRedis, bars, config)
	require.NoError(t, bridge.Start())
	defer bridge.Stop()

	end := time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		bars <- testBar("AAPL", end.Add(time.Duration(i)*time.Minute), 1000)
	}

	// Wait for timeout flush
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 3, len(mockRedis.StreamData), "Bars should be flushed on timeout")
}

func TestStreamBridge_SkipsInvalidBars(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	bars := make(chan *models.Bar, 10)

	config := DefaultBridgeConfig()
	config.BatchTimeout = 50 * time.Millisecond

	bridge := NewStreamBridge(mockRedis, bars, config)
	require.NoError(t, bridge.Start())
	defer bridge.Stop()

	end := time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC)
	invalid := testBar("", end, 1000) // missing symbol
	bars <- invalid
	bars <- nil
	bars <- testBar("AAPL", end, 1000)

	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 1, len(mockRedis.StreamData), "Only the valid bar should be published")
}

func TestStreamBridge_StopFlushesRemainder(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	bars := make(chan *models.Bar, 10)

	config := DefaultBridgeConfig()
	config.BatchSize = 100
	config.BatchTimeout = 1 * time.Second

	bridge := NewStreamBridge(mockRedis, bars, config)
	require.NoError(t, bridge.Start())

	end := time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		bars <- testBar("AAPL", end.Add(time.Duration(i)*time.Minute), 1000)
	}

	// Let the bridge drain the channel, then stop before any flush fires
	time.Sleep(50 * time.Millisecond)
	bridge.Stop()

	assert.Equal(t, 3, len(mockRedis.StreamData), "Stop should flush buffered bars")
	assert.False(t, bridge.IsRunning())
}

func TestStreamBridge_FeedClosed(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	bars := make(chan *models.Bar, 10)

	config := DefaultBridgeConfig()
	config.BatchSize = 100
	config.BatchTimeout = 1 * time.Second

	bridge := NewStreamBridge(mockRedis, bars, config)
	require.NoError(t, bridge.Start())
	defer bridge.Stop()

	end := time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC)
	bars <- testBar("AAPL", end, 1000)
	bars <- testBar("MSFT", end, 2000)
	close(bars)

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 2, len(mockRedis.StreamData), "Closing the feed should flush buffered bars")
}

func TestStreamBridge_PublishError(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	mockRedis.PublishErr = errors.New("redis down")
	bars := make(chan *models.Bar, 10)

	config := DefaultBridgeConfig()
	config.BatchTimeout = 50 * time.Millisecond

	bridge := NewStreamBridge(mockRedis, bars, config)
	require.NoError(t, bridge.Start())
	defer bridge.Stop()

	bars <- testBar("AAPL", time.Date(2024, 1, 15, 14, 31, 0, 0, time.UTC), 1000)
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 0, len(mockRedis.StreamData))
}

func TestStreamBridge_DoubleStart(t *testing.T) {
	mockRedis := storage.NewMockRedisClient()
	bars := make(chan *models.Bar)

	bridge := NewStreamBridge(mockRedis, bars, DefaultBridgeConfig())
	require.NoError(t, bridge.Start())
	defer bridge.Stop()

	err := bridge.Start()
	assert.Error(t, err)
}

func TestBridgeConfigFromEngineConfig(t *testing.T) {
	engineConfig := config.EngineConfig{BarStream: "bars.custom"}
	bridgeConfig := BridgeConfigFromEngineConfig(engineConfig)
	assert.Equal(t, "bars.custom", bridgeConfig.Stream)
	assert.Equal(t, 100, bridgeConfig.BatchSize)

	bridgeConfig = BridgeConfigFromEngineConfig(config.EngineConfig{})
	assert.Equal(t, "bars.finalized", bridgeConfig.Stream)
}
