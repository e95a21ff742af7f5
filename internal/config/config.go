package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	// Database (value persistence, optional)
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Historical bar provider (rehydration)
	History HistoryConfig

	// Bar feed
	Feed FeedConfig

	// Engine
	Engine EngineConfig
}

// DatabaseConfig holds Postgres/TimescaleDB configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// HistoryConfig holds the historical aggregates provider configuration
type HistoryConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// FeedConfig selects where live bars come from
type FeedConfig struct {
	// Mode is "stream" (Redis stream consumer) or "websocket" (direct feed)
	Mode              string
	WebSocketURL      string
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// EngineConfig holds the anchored VWAP engine configuration
type EngineConfig struct {
	HealthCheckPort int

	// Stream consumption
	BarStream     string
	ConsumerGroup string
	BatchSize     int
	AckTimeout    time.Duration

	// Anchors: rolling presets plus optional fixed timestamps
	AnchorPresets []string
	FixedAnchors  []time.Time
	PriceSource   string

	// Symbols to preload on startup (required for rehydration)
	Symbols []string

	// Publishing
	ValueTTL       time.Duration
	PublishChannel string
	ValueStream    string

	// Persistence
	PersistEnabled   bool
	RehydrateEnabled bool
	DBWriteBatchSize int
	DBWriteInterval  time.Duration
	DBWriteQueueSize int
	DBMaxRetries     int
	DBRetryDelay     time.Duration
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory or parent directories
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	fixedAnchors, err := parseTimeList(os.Getenv("ENGINE_FIXED_ANCHORS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ENGINE_FIXED_ANCHORS: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "avwap"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		History: HistoryConfig{
			BaseURL: getEnv("HISTORY_BASE_URL", ""),
			APIKey:  getEnv("HISTORY_API_KEY", ""),
			Timeout: getEnvAsDuration("HISTORY_TIMEOUT", 10*time.Second),
		},
		Feed: FeedConfig{
			Mode:              getEnv("FEED_MODE", "stream"),
			WebSocketURL:      getEnv("FEED_WS_URL", ""),
			ReconnectDelay:    getEnvAsDuration("FEED_RECONNECT_DELAY", 1*time.Second),
			MaxReconnectDelay: getEnvAsDuration("FEED_MAX_RECONNECT_DELAY", 30*time.Second),
		},
		Engine: EngineConfig{
			HealthCheckPort:  getEnvAsInt("ENGINE_HEALTH_PORT", 8085),
			BarStream:        getEnv("ENGINE_BAR_STREAM", "bars.finalized"),
			ConsumerGroup:    getEnv("ENGINE_CONSUMER_GROUP", "avwap-engine"),
			BatchSize:        getEnvAsInt("ENGINE_BATCH_SIZE", 100),
			AckTimeout:       getEnvAsDuration("ENGINE_ACK_TIMEOUT", 5*time.Second),
			AnchorPresets:    getEnvAsStringSlice("ENGINE_ANCHOR_PRESETS", []string{"session_open", "day_open"}),
			FixedAnchors:     fixedAnchors,
			PriceSource:      getEnv("ENGINE_PRICE_SOURCE", "ohlc4"),
			Symbols:          getEnvAsStringSlice("ENGINE_SYMBOLS", []string{}),
			ValueTTL:         getEnvAsDuration("ENGINE_VALUE_TTL", 1*time.Hour),
			PublishChannel:   getEnv("ENGINE_PUBLISH_CHANNEL", "avwap.updated"),
			ValueStream:      getEnv("ENGINE_VALUE_STREAM", ""),
			PersistEnabled:   getEnvAsBool("ENGINE_PERSIST_ENABLED", false),
			RehydrateEnabled: getEnvAsBool("ENGINE_REHYDRATE_ENABLED", false),
			DBWriteBatchSize: getEnvAsInt("ENGINE_DB_WRITE_BATCH_SIZE", 500),
			DBWriteInterval:  getEnvAsDuration("ENGINE_DB_WRITE_INTERVAL", 1*time.Second),
			DBWriteQueueSize: getEnvAsInt("ENGINE_DB_WRITE_QUEUE_SIZE", 5000),
			DBMaxRetries:     getEnvAsInt("ENGINE_DB_MAX_RETRIES", 3),
			DBRetryDelay:     getEnvAsDuration("ENGINE_DB_RETRY_DELAY", 100*time.Millisecond),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.Engine.BarStream == "" {
		return fmt.Errorf("ENGINE_BAR_STREAM is required")
	}
	if len(c.Engine.AnchorPresets)+len(c.Engine.FixedAnchors) == 0 {
		return fmt.Errorf("at least one anchor preset or fixed anchor is required")
	}
	switch c.Engine.PriceSource {
	case "ohlc4", "hlc3", "close":
	default:
		return fmt.Errorf("ENGINE_PRICE_SOURCE must be one of ohlc4, hlc3, close")
	}
	switch c.Feed.Mode {
	case "stream":
	case "websocket":
		if c.Feed.WebSocketURL == "" {
			return fmt.Errorf("FEED_WS_URL is required when FEED_MODE is websocket")
		}
	default:
		return fmt.Errorf("FEED_MODE must be stream or websocket")
	}
	if c.Engine.PersistEnabled && c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required when persistence is enabled")
	}
	if c.Engine.RehydrateEnabled {
		if c.History.BaseURL == "" {
			return fmt.Errorf("HISTORY_BASE_URL is required when rehydration is enabled")
		}
		if c.History.APIKey == "" {
			return fmt.Errorf("HISTORY_API_KEY is required when rehydration is enabled")
		}
		if len(c.Engine.Symbols) == 0 {
			return fmt.Errorf("ENGINE_SYMBOLS must contain at least one symbol when rehydration is enabled")
		}
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Split by comma and trim spaces
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// parseTimeList parses a comma-separated list of RFC3339 timestamps.
// A malformed entry is a hard error, not skipped.
func parseTimeList(value string) ([]time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	result := make([]time.Time, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, trimmed)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", trimmed, err)
		}
		result = append(result, t)
	}
	return result, nil
}
