package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quantfeed/avwap/internal/config"
	"github.com/quantfeed/avwap/internal/models"
	"github.com/quantfeed/avwap/pkg/logger"
)

var (
	// Metrics for value store operations
	valueWriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avwap_db_write_total",
			Help: "Total number of indicator value writes to Postgres",
		},
		[]string{"status"}, // "success" or "error"
	)

	valueWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avwap_db_write_errors_total",
			Help: "Total number of indicator value write errors",
		},
		[]string{"error_type"},
	)

	valueWriteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "avwap_db_write_latency_seconds",
			Help:    "Write latency to Postgres in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		},
		[]string{"operation"},
	)

	valueWriteQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "avwap_db_write_queue_depth",
			Help: "Current depth of the value write queue",
		},
	)

	valueWriteBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "avwap_db_write_batch_size",
			Help:    "Batch size for Postgres value writes",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"operation"},
	)
)

// PostgresValueStore implements ValueStore backed by Postgres
type PostgresValueStore struct {
	db          *sql.DB
	dbConfig    config.DatabaseConfig
	writeConfig WriteConfig

	// Write queue
	writeQueue chan []*models.IndicatorValue
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	running    bool
}

// WriteConfig holds configuration for write operations
type WriteConfig struct {
	BatchSize  int
	Interval   time.Duration
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// WriteConfigFromEngineConfig creates a WriteConfig from EngineConfig
func WriteConfigFromEngineConfig(engineConfig config.EngineConfig) WriteConfig {
	return WriteConfig{
		BatchSize:  engineConfig.DBWriteBatchSize,
		Interval:   engineConfig.DBWriteInterval,
		QueueSize:  engineConfig.DBWriteQueueSize,
		MaxRetries: engineConfig.DBMaxRetries,
		RetryDelay: engineConfig.DBRetryDelay,
	}
}

// NewPostgresValueStore creates a new Postgres value store
func NewPostgresValueStore(dbConfig config.DatabaseConfig, writeConfig WriteConfig) (*PostgresValueStore, error) {
	// Build connection string
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Database,
		dbConfig.SSLMode,
	)

	// Open database connection
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storeCtx, storeCancel := context.WithCancel(context.Background())

	store := &PostgresValueStore{
		db:          db,
		dbConfig:    dbConfig,
		writeConfig: writeConfig,
		writeQueue:  make(chan []*models.IndicatorValue, writeConfig.QueueSize),
		ctx:         storeCtx,
		cancel:      storeCancel,
	}

	logger.Info("Connected to Postgres",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)

	return store, nil
}

// Start starts the write queue processor
func (s *PostgresValueStore) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("value store is already running")
	}
	s.running = true
	s.mu.Unlock()

	logger.Info("Starting value write queue processor",
		logger.Int("batch_size", s.writeConfig.BatchSize),
		logger.Duration("interval", s.writeConfig.Interval),
	)

	s.wg.Add(1)
	go s.processWriteQueue()

	return nil
}

// Stop stops the write queue processor and flushes remaining writes
func (s *PostgresValueStore) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	logger.Info("Stopping value write queue processor")
	s.cancel()

	// Flush remaining writes
	close(s.writeQueue)
	for values := range s.writeQueue {
		if len(values) > 0 {
			s.writeValuesSync(context.Background(), values)
		}
	}

	s.wg.Wait()

	// Close database connection
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	logger.Info("Value store stopped")
	return nil
}

// WriteValues enqueues indicator values for async writing
func (s *PostgresValueStore) WriteValues(ctx context.Context, values []*models.IndicatorValue) error {
	if len(values) == 0 {
		return nil
	}

	// Validate values
	validValues := make([]*models.IndicatorValue, 0, len(values))
	for _, value := range values {
		if err := value.Validate(); err != nil {
			logger.Warn("Invalid indicator value, skipping",
				logger.ErrorField(err),
				logger.String("symbol", value.Symbol),
				logger.String("indicator", value.Indicator),
			)
			continue
		}
		validValues = append(validValues, value)
	}

	if len(validValues) == 0 {
		return nil
	}

	// Try to enqueue (non-blocking with timeout)
	select {
	case s.writeQueue <- validValues:
		valueWriteQueueDepth.Set(float64(len(s.writeQueue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		// Queue might be full, log warning but still try
		logger.Warn("Value write queue may be full, attempting to enqueue",
			logger.Int("queue_depth", len(s.writeQueue)),
			logger.Int("value_count", len(validValues)),
		)
		select {
		case s.writeQueue <- validValues:
			valueWriteQueueDepth.Set(float64(len(s.writeQueue)))
			return nil
		default:
			valueWriteErrors.WithLabelValues("queue_full").Inc()
			return fmt.Errorf("value write queue is full")
		}
	}
}

// Close closes the database connection
func (s *PostgresValueStore) Close() error {
	return s.Stop()
}

// processWriteQueue processes the write queue
func (s *PostgresValueStore) processWriteQueue() {
	defer s.wg.Done()

	batch := make([]*models.IndicatorValue, 0, s.writeConfig.BatchSize)
	ticker := time.NewTicker(s.writeConfig.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			// Flush remaining batch
			if len(batch) > 0 {
				s.writeValuesSync(context.Background(), batch)
			}
			return

		case values, ok := <-s.writeQueue:
			if !ok {
				// Channel closed, flush and exit
				if len(batch) > 0 {
					s.writeValuesSync(context.Background(), batch)
				}
				return
			}

			batch = append(batch, values...)
			valueWriteQueueDepth.Set(float64(len(s.writeQueue)))

			// Flush if batch is full
			if len(batch) >= s.writeConfig.BatchSize {
				s.writeValuesSync(context.Background(), batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			// Flush on interval
			if len(batch) > 0 {
				s.writeValuesSync(context.Background(), batch)
				batch = batch[:0]
			}
		}
	}
}

// writeValuesSync writes values synchronously with retry logic
func (s *PostgresValueStore) writeValuesSync(ctx context.Context, values []*models.IndicatorValue) {
	if len(values) == 0 {
		return
	}

	startTime := time.Now()
	valueWriteBatchSize.WithLabelValues("write").Observe(float64(len(values)))

	var err error
	for attempt := 0; attempt < s.writeConfig.MaxRetries; attempt++ {
		err = s.insertValues(ctx, values)
		if err == nil {
			break
		}

		if attempt < s.writeConfig.MaxRetries-1 {
			delay := s.writeConfig.RetryDelay * time.Duration(1<<uint(attempt)) // Exponential backoff
			logger.Warn("Failed to write indicator values, retrying",
				logger.ErrorField(err),
				logger.Int("attempt", attempt+1),
				logger.Int("value_count", len(values)),
				logger.Duration("delay", delay),
			)
			time.Sleep(delay)
		}
	}

	latency := time.Since(startTime).Seconds()
	valueWriteLatency.WithLabelValues("write").Observe(latency)

	if err != nil {
		valueWriteErrors.WithLabelValues("write_failed").Inc()
		valueWriteTotal.WithLabelValues("error").Add(float64(len(values)))
		logger.Error("Failed to write indicator values after retries",
			logger.ErrorField(err),
			logger.Int("value_count", len(values)),
		)
		return
	}

	valueWriteTotal.WithLabelValues("success").Add(float64(len(values)))
	logger.Debug("Wrote indicator values to Postgres",
		logger.Int("count", len(values)),
		logger.Duration("latency", time.Since(startTime)),
	)
}

// insertValues inserts values into the database using batch insert
func (s *PostgresValueStore) insertValues(ctx context.Context, values []*models.IndicatorValue) error {
	if len(values) == 0 {
		return nil
	}

	// Use transaction for atomicity
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Prepare statement for batch insert
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO avwap_values (symbol, indicator, timestamp, value, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, indicator, timestamp) DO UPDATE SET
			value = EXCLUDED.value,
			status = EXCLUDED.status
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	// Execute batch insert
	for _, value := range values {
		_, err := stmt.ExecContext(ctx,
			value.Symbol,
			value.Indicator,
			value.Timestamp,
			value.Value,
			value.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to insert indicator value: %w", err)
		}
	}

	// Commit transaction
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// IsRunning returns whether the store is running
func (s *PostgresValueStore) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
