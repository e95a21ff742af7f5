package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/quantfeed/avwap/internal/models"
)

// MockValueStore is a mock implementation of ValueStore for testing
type MockValueStore struct {
	mu       sync.Mutex
	Values   []*models.IndicatorValue
	WriteErr error
}

func (m *MockValueStore) WriteValues(ctx context.Context, values []*models.IndicatorValue) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Values = append(m.Values, values...)
	return nil
}

func (m *MockValueStore) Close() error {
	return nil
}

// WrittenValues returns a copy of all values written so far
func (m *MockValueStore) WrittenValues() []*models.IndicatorValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*models.IndicatorValue, len(m.Values))
	copy(result, m.Values)
	return result
}

// MockRedisClient is a mock implementation of RedisClient for testing
type MockRedisClient struct {
	mu           sync.Mutex
	Data         map[string]string
	StreamData   []StreamMessage
	PubSubData   []PubSubMessage
	Published    []PubSubMessage
	PublishErr   error
	GetErr       error
	SetErr       error
	SubscribeErr error
	ConsumeErr   error
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		Data: make(map[string]string),
	}
}

func (m *MockRedisClient) PublishToStream(ctx context.Context, stream string, key string, value interface{}) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StreamData = append(m.StreamData, StreamMessage{
		Stream: stream,
		Values: map[string]interface{}{key: string(jsonData)},
	})
	return nil
}

func (m *MockRedisClient) PublishBatchToStream(ctx context.Context, stream string, messages []map[string]interface{}) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		m.StreamData = append(m.StreamData, StreamMessage{
			ID:     "", // Mock doesn't generate IDs
			Stream: stream,
			Values: msg,
		})
	}
	return nil
}

func (m *MockRedisClient) ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan StreamMessage, error) {
	if m.ConsumeErr != nil {
		return nil, m.ConsumeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan StreamMessage, len(m.StreamData))
	for _, msg := range m.StreamData {
		ch <- msg
	}
	close(ch)
	return ch, nil
}

func (m *MockRedisClient) AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error {
	return nil
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	// Marshal to JSON like the real implementation
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = string(jsonData)
	return nil
}

func (m *MockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetErr != nil {
		return "", m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Data[key], nil
}

func (m *MockRedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if m.GetErr != nil {
		return m.GetErr
	}
	m.mu.Lock()
	value, exists := m.Data[key]
	m.mu.Unlock()
	if !exists {
		return nil // Return nil if key doesn't exist (like real implementation)
	}
	return json.Unmarshal([]byte(value), dest)
}

func (m *MockRedisClient) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.Data[key]
	return exists, nil
}

func (m *MockRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	jsonData, err := json.Marshal(message)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, PubSubMessage{
		Channel: channel,
		Message: string(jsonData),
	})
	return nil
}

func (m *MockRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error) {
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan PubSubMessage, len(m.PubSubData))
	for _, msg := range m.PubSubData {
		ch <- msg
	}
	close(ch)
	return ch, nil
}

func (m *MockRedisClient) Close() error {
	return nil
}
