package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/quantfeed/avwap/internal/config"
	"github.com/quantfeed/avwap/internal/feed"
	"github.com/quantfeed/avwap/pkg/logger"
)

// RehydrationConfig holds configuration for state rehydration
type RehydrationConfig struct {
	Symbols            []string      // Symbols to rehydrate
	RehydrationTimeout time.Duration // Timeout for the whole rehydration (default: 60 seconds)
	MaxLookback        time.Duration // Cap on how far back history is replayed (default: 7 days)
}

// DefaultRehydrationConfig returns default configuration
func DefaultRehydrationConfig() RehydrationConfig {
	return RehydrationConfig{
		Symbols:            []string{},
		RehydrationTimeout: 60 * time.Second,
		MaxLookback:        7 * 24 * time.Hour,
	}
}

// RehydrationConfigFromEngineConfig builds a rehydration configuration from
// the engine config
func RehydrationConfigFromEngineConfig(cfg config.EngineConfig) RehydrationConfig {
	rc := DefaultRehydrationConfig()
	rc.Symbols = cfg.Symbols
	return rc
}

// Rehydrator rebuilds engine state on startup by replaying historical bars
// from the earliest configured anchor. Replay goes through the same
// ProcessBar path as live bars, so anchors roll forward exactly as they
// would have live.
type Rehydrator struct {
	config  RehydrationConfig
	engine  *Engine
	history feed.History
}

// NewRehydrator creates a new rehydrator
func NewRehydrator(config RehydrationConfig, engine *Engine, history feed.History) *Rehydrator {
	if engine == nil {
		panic("engine cannot be nil")
	}
	if history == nil {
		panic("history cannot be nil")
	}

	return &Rehydrator{
		config:  config,
		engine:  engine,
		history: history,
	}
}

// RehydrateState replays history for all configured symbols
func (r *Rehydrator) RehydrateState(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.RehydrationTimeout)
	defer cancel()

	now := time.Now().UTC()
	from, to := r.replayRange(now)
	if !to.After(from) {
		logger.Info("No past anchors to replay, skipping rehydration")
		return nil
	}

	logger.Info("Starting state rehydration",
		logger.Int("symbol_count", len(r.config.Symbols)),
		logger.Time("from", from),
		logger.Time("to", to),
	)

	rehydratedCount := 0
	for _, symbol := range r.config.Symbols {
		if err := r.rehydrateSymbol(ctx, symbol, from, to); err != nil {
			logger.Error("Failed to rehydrate symbol",
				logger.ErrorField(err),
				logger.String("symbol", symbol),
			)
			// Continue with other symbols even if one fails
			continue
		}
		rehydratedCount++
	}

	logger.Info("State rehydration complete",
		logger.Int("symbols_rehydrated", rehydratedCount),
		logger.Int("total_symbols", len(r.config.Symbols)),
	)

	return nil
}

// replayRange resolves the replay window ending at now. The window starts at
// the earliest configured anchor, clamped to MaxLookback.
func (r *Rehydrator) replayRange(now time.Time) (time.Time, time.Time) {
	earliest, ok := r.engine.Registry().EarliestAnchor(now)
	if !ok {
		return now, now
	}

	floor := now.Add(-r.config.MaxLookback)
	if earliest.Before(floor) {
		logger.Warn("Earliest anchor exceeds lookback cap, truncating replay",
			logger.Time("anchor", earliest),
			logger.Duration("max_lookback", r.config.MaxLookback),
		)
		earliest = floor
	}

	return earliest, now
}

// rehydrateSymbol replays historical bars for a single symbol
func (r *Rehydrator) rehydrateSymbol(ctx context.Context, symbol string, from, to time.Time) error {
	bars, err := r.history.FetchBars(ctx, symbol, from, to)
	if err != nil {
		return fmt.Errorf("failed to fetch history: %w", err)
	}

	if len(bars) == 0 {
		logger.Debug("No historical bars for symbol",
			logger.String("symbol", symbol),
		)
		return nil
	}

	replayed := 0
	for _, bar := range bars {
		if err := r.engine.ProcessBar(bar); err != nil {
			logger.Warn("Failed to replay bar",
				logger.ErrorField(err),
				logger.String("symbol", symbol),
				logger.Time("end", bar.End),
			)
			// Continue with remaining bars
			continue
		}
		replayed++
	}

	ready := 0
	if values, err := r.engine.GetValues(symbol); err == nil {
		ready = len(values)
	}

	logger.Debug("Replayed history for symbol",
		logger.String("symbol", symbol),
		logger.Int("bar_count", replayed),
		logger.Int("ready_indicators", ready),
	)

	return nil
}

// IsReady reports whether rehydration produced any tracked symbols
func (r *Rehydrator) IsReady() bool {
	return r.engine.GetSymbolCount() > 0
}
