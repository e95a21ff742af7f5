package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quantfeed/avwap/internal/config"
	"github.com/quantfeed/avwap/internal/engine"
	"github.com/quantfeed/avwap/internal/feed"
	"github.com/quantfeed/avwap/internal/models"
	"github.com/quantfeed/avwap/internal/pubsub"
	"github.com/quantfeed/avwap/internal/storage"
	"github.com/quantfeed/avwap/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting anchored VWAP service",
		logger.Int("health_port", cfg.Engine.HealthCheckPort),
		logger.String("bar_stream", cfg.Engine.BarStream),
		logger.String("feed_mode", cfg.Feed.Mode),
		logger.String("price_source", cfg.Engine.PriceSource),
		logger.Any("anchor_presets", cfg.Engine.AnchorPresets),
		logger.Bool("persist_enabled", cfg.Engine.PersistEnabled),
		logger.Bool("rehydrate_enabled", cfg.Engine.RehydrateEnabled),
	)

	// Initialize Redis client
	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client",
			logger.ErrorField(err),
		)
	}
	defer redisClient.Close()

	// Register configured anchors
	registry := engine.NewRegistry()
	if err := engine.RegisterConfiguredAnchors(registry, cfg.Engine); err != nil {
		logger.Fatal("Failed to register anchors",
			logger.ErrorField(err),
		)
	}

	avwapEngine := engine.NewEngine(registry)
	defer avwapEngine.Stop()

	// Initialize value publisher
	publisher := engine.NewPublisher(redisClient, engine.PublisherConfigFromEngineConfig(cfg.Engine))

	// Optional Postgres persistence of published values
	var valueStore *storage.PostgresValueStore
	if cfg.Engine.PersistEnabled {
		valueStore, err = storage.NewPostgresValueStore(cfg.Database, storage.WriteConfigFromEngineConfig(cfg.Engine))
		if err != nil {
			logger.Fatal("Failed to initialize value store",
				logger.ErrorField(err),
			)
		}
		defer valueStore.Close()

		if err := valueStore.Start(); err != nil {
			logger.Fatal("Failed to start value store",
				logger.ErrorField(err),
			)
		}
		publisher.SetValueStore(valueStore)
	}

	if err := publisher.Start(); err != nil {
		logger.Fatal("Failed to start value publisher",
			logger.ErrorField(err),
		)
	}
	defer publisher.Stop()

	// Rehydrate engine state before the publish callback is attached so
	// replayed history does not flood subscribers with stale snapshots
	if cfg.Engine.RehydrateEnabled {
		history := feed.NewRESTHistory(cfg.History)
		rehydrator := engine.NewRehydrator(engine.RehydrationConfigFromEngineConfig(cfg.Engine), avwapEngine, history)
		if err := rehydrator.RehydrateState(context.Background()); err != nil {
			logger.Error("Rehydration failed, starting with empty state",
				logger.ErrorField(err),
			)
		}
	}

	avwapEngine.SetOnValuesUpdated(func(symbol string, values []*models.IndicatorValue) {
		if err := publisher.PublishValues(symbol, values); err != nil {
			logger.Error("Failed to publish values",
				logger.ErrorField(err),
				logger.String("symbol", symbol),
			)
		}
	})

	// In websocket mode a direct feed writes finalized bars onto the same
	// stream the consumer reads, so bars stay durable across restarts
	var wsFeed *feed.WebSocketFeed
	var bridge *feed.StreamBridge
	if cfg.Feed.Mode == "websocket" {
		wsFeed = feed.NewWebSocketFeed(feed.WebSocketFeedConfigFromConfig(cfg.Feed), cfg.Engine.Symbols)
		if err := wsFeed.Connect(); err != nil {
			logger.Fatal("Failed to connect bar feed",
				logger.ErrorField(err),
			)
		}
		defer wsFeed.Close()

		bridge = feed.NewStreamBridge(redisClient, wsFeed.Bars(), feed.BridgeConfigFromEngineConfig(cfg.Engine))
		if err := bridge.Start(); err != nil {
			logger.Fatal("Failed to start stream bridge",
				logger.ErrorField(err),
			)
		}
		defer bridge.Stop()
	}

	// Initialize bar consumer
	consumerName := fmt.Sprintf("avwap-%s", uuid.NewString()[:8])
	consumer := engine.NewBarConsumer(redisClient, engine.ConsumerConfigFromEngineConfig(cfg.Engine, consumerName))
	consumer.SetProcessor(avwapEngine)

	if err := consumer.Start(); err != nil {
		logger.Fatal("Failed to start bar consumer",
			logger.ErrorField(err),
		)
	}
	defer consumer.Stop()

	logger.Info("Anchored VWAP service started",
		logger.String("consumer_name", consumerName),
		logger.String("consumer_group", cfg.Engine.ConsumerGroup),
		logger.Int("symbols_tracked", avwapEngine.GetSymbolCount()),
	)

	// Setup health and metrics server
	var wg sync.WaitGroup
	healthRouter := setupHealthAndMetricsServer(avwapEngine, consumer, publisher, valueStore, wsFeed)
	healthServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Engine.HealthCheckPort),
		Handler:      healthRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting health and metrics server",
			logger.Int("port", cfg.Engine.HealthCheckPort),
		)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health and metrics server failed",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down anchored VWAP service")

	// Shut down HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Health server shutdown failed", logger.ErrorField(err))
	}

	// Wait for all goroutines to finish
	wg.Wait()

	logger.Info("Anchored VWAP service stopped")
}

// setupHealthAndMetricsServer sets up HTTP endpoints for health checks and metrics
func setupHealthAndMetricsServer(
	avwapEngine *engine.Engine,
	consumer *engine.BarConsumer,
	publisher *engine.Publisher,
	valueStore *storage.PostgresValueStore,
	wsFeed *feed.WebSocketFeed,
) *mux.Router {
	router := mux.NewRouter()
	router.Use(metricsMiddleware)

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		checks := map[string]interface{}{
			"consumer": map[string]interface{}{
				"status":  "ok",
				"running": consumer.IsRunning(),
				"stats":   consumer.GetStats(),
			},
			"engine": map[string]interface{}{
				"status":       "ok",
				"symbol_count": avwapEngine.GetSymbolCount(),
			},
			"publisher": map[string]interface{}{
				"status":  "ok",
				"running": publisher.IsRunning(),
				"stats":   publisher.GetStats(),
			},
		}
		if valueStore != nil {
			checks["value_store"] = map[string]interface{}{
				"status":  "ok",
				"running": valueStore.IsRunning(),
			}
		}
		if wsFeed != nil {
			checks["feed"] = map[string]interface{}{
				"status":             "ok",
				"state":              wsFeed.GetState().String(),
				"reconnect_attempts": wsFeed.GetReconnectAttempts(),
			}
		}

		healthStatus := map[string]interface{}{
			"status":    "UP",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		}

		// Check if any component is not running
		if !consumer.IsRunning() || !publisher.IsRunning() ||
			(valueStore != nil && !valueStore.IsRunning()) {
			status = http.StatusServiceUnavailable
			healthStatus["status"] = "DOWN"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(healthStatus)
	}).Methods("GET")

	// Readiness probe
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if consumer.IsRunning() && publisher.IsRunning() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("READY"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT READY"))
		}
	}).Methods("GET")

	// Liveness probe
	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("LIVE"))
	}).Methods("GET")

	// Metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	return router
}

// metricsMiddleware records request duration and count per endpoint
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		logger.RequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
		logger.RequestTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
	})
}

// statusRecorder captures the response status code for metrics
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
