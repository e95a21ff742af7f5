package storage

import (
	"context"
	"testing"
	"time"

	"github.com/quantfeed/avwap/internal/config"
	"github.com/quantfeed/avwap/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestWriteConfigFromEngineConfig(t *testing.T) {
	engineConfig := config.EngineConfig{
		DBWriteBatchSize: 2000,
		DBWriteInterval:  2 * time.Second,
		DBWriteQueueSize: 20000,
		DBMaxRetries:     5,
		DBRetryDelay:     200 * time.Millisecond,
	}

	writeConfig := WriteConfigFromEngineConfig(engineConfig)

	assert.Equal(t, 2000, writeConfig.BatchSize)
	assert.Equal(t, 2*time.Second, writeConfig.Interval)
	assert.Equal(t, 20000, writeConfig.QueueSize)
	assert.Equal(t, 5, writeConfig.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, writeConfig.RetryDelay)
}

// Note: Full integration tests for the Postgres store would require a real database
// These should be in a separate integration test file that can be run with a test database
// For now, we test the validation and configuration logic

func TestPostgresValueStore_WriteValues_Validation(t *testing.T) {
	values := []*models.IndicatorValue{
		{
			Symbol:    "AAPL",
			Indicator: "avwap_session",
			Value:     150.25,
			Status:    "success",
			Timestamp: time.Now(),
		},
		{
			// Invalid value (missing symbol)
			Indicator: "avwap_session",
			Value:     150.25,
			Status:    "success",
			Timestamp: time.Now(),
		},
	}

	// Test that invalid values are filtered out
	validValues := make([]*models.IndicatorValue, 0, len(values))
	for _, value := range values {
		if err := value.Validate(); err == nil {
			validValues = append(validValues, value)
		}
	}

	assert.Len(t, validValues, 1)
	assert.Equal(t, "AAPL", validValues[0].Symbol)
}

func TestMockValueStore_RecordsWrites(t *testing.T) {
	store := &MockValueStore{}

	values := []*models.IndicatorValue{
		{
			Symbol:    "TSLA",
			Indicator: "avwap_day",
			Value:     212.5,
			Status:    "success",
			Timestamp: time.Now(),
		},
	}

	err := store.WriteValues(context.Background(), values)
	assert.NoError(t, err)

	written := store.WrittenValues()
	assert.Len(t, written, 1)
	assert.Equal(t, "TSLA", written[0].Symbol)
	assert.Equal(t, "avwap_day", written[0].Indicator)
}
