package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quantfeed/avwap/internal/models"
	"github.com/quantfeed/avwap/pkg/indicator"
	"github.com/quantfeed/avwap/pkg/logger"
)

var (
	// Metrics for engine operations
	engineBarsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avwap_bars_processed_total",
			Help: "Total number of bars processed by the engine",
		},
	)

	engineUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avwap_updates_total",
			Help: "Total number of calculator updates by indicator and status",
		},
		[]string{"indicator", "status"},
	)

	engineReanchorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avwap_reanchors_total",
			Help: "Total number of calculator re-anchors by indicator",
		},
		[]string{"indicator"},
	)

	engineSymbolsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "avwap_symbols_tracked",
			Help: "Number of symbols with live calculator state",
		},
	)
)

// OnValuesUpdated is a callback function called after a bar updates a
// symbol's calculators. It receives only successfully computed values.
type OnValuesUpdated func(symbol string, values []*models.IndicatorValue)

// symbolEntry pairs a symbol's calculator state with the anchor each
// calculator is currently accumulating under
type symbolEntry struct {
	state   *indicator.SymbolState
	anchors map[string]time.Time
}

// Engine processes finalized bars and maintains anchored VWAP state per symbol
type Engine struct {
	registry        *Registry
	states          map[string]*symbolEntry
	onValuesUpdated OnValuesUpdated
	mu              sync.RWMutex
	ctx             context.Context
	cancel          context.CancelFunc
}

// NewEngine creates a new anchored VWAP engine
func NewEngine(registry *Registry) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		registry: registry,
		states:   make(map[string]*symbolEntry),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry returns the preset registry the engine instantiates from
func (e *Engine) Registry() *Registry {
	return e.registry
}

// ProcessBar processes a finalized bar and updates the symbol's calculators.
// Rolling presets whose anchor has moved past the one they were accumulating
// under are replaced with a fresh calculator before the update.
func (e *Engine) ProcessBar(bar *models.Bar) error {
	if bar == nil {
		return fmt.Errorf("bar cannot be nil")
	}

	if err := bar.Validate(); err != nil {
		return fmt.Errorf("invalid bar: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entry, exists := e.states[bar.Symbol]
	if !exists {
		entry = &symbolEntry{
			state:   indicator.NewSymbolState(bar.Symbol),
			anchors: make(map[string]time.Time),
		}
		e.states[bar.Symbol] = entry
		engineSymbolsTracked.Set(float64(len(e.states)))
	}

	e.syncCalculators(entry, bar)

	results := entry.state.Update(bar)
	engineBarsProcessed.Inc()

	values := make([]*models.IndicatorValue, 0, len(results))
	for name, result := range results {
		engineUpdatesTotal.WithLabelValues(name, result.Status.String()).Inc()
		if result.Status != indicator.StatusSuccess {
			continue
		}
		values = append(values, &models.IndicatorValue{
			Symbol:    bar.Symbol,
			Indicator: name,
			Value:     result.Value.InexactFloat64(),
			Status:    result.Status.String(),
			Timestamp: result.Time,
		})
	}
	sort.Slice(values, func(i, j int) bool {
		return values[i].Indicator < values[j].Indicator
	})

	if e.onValuesUpdated != nil && len(values) > 0 {
		e.onValuesUpdated(bar.Symbol, values)
	}

	return nil
}

// syncCalculators instantiates missing calculators and replaces ones whose
// rolling anchor has rolled forward
func (e *Engine) syncCalculators(entry *symbolEntry, bar *models.Bar) {
	for _, name := range e.registry.ListAvailable() {
		resolved, ok := e.registry.ResolveAnchor(name, bar.End)
		if !ok {
			continue
		}

		current, tracked := entry.anchors[name]
		if tracked && !resolved.After(current) {
			continue
		}

		calc, err := e.registry.CreateCalculator(name, bar.End)
		if err != nil {
			logger.Warn("Failed to create calculator",
				logger.String("name", name),
				logger.String("symbol", entry.state.Symbol()),
				logger.ErrorField(err),
			)
			continue
		}

		entry.state.AddCalculator(calc)
		entry.anchors[name] = resolved

		if tracked {
			engineReanchorsTotal.WithLabelValues(name).Inc()
			logger.Info("Re-anchored calculator",
				logger.String("symbol", entry.state.Symbol()),
				logger.String("indicator", name),
				logger.Time("anchor", resolved),
			)
		}
	}
}

// GetValues returns all ready indicator values for a symbol
func (e *Engine) GetValues(symbol string) (map[string]float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, exists := e.states[symbol]
	if !exists {
		return nil, fmt.Errorf("symbol %s not found", symbol)
	}

	return entry.state.GetAllValues(), nil
}

// ActiveAnchors returns the anchor each of a symbol's calculators is
// accumulating under
func (e *Engine) ActiveAnchors(symbol string) (map[string]time.Time, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, exists := e.states[symbol]
	if !exists {
		return nil, fmt.Errorf("symbol %s not found", symbol)
	}

	anchors := make(map[string]time.Time, len(entry.anchors))
	for name, anchor := range entry.anchors {
		anchors[name] = anchor
	}
	return anchors, nil
}

// GetSymbolCount returns the number of symbols being tracked
func (e *Engine) GetSymbolCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.states)
}

// SetOnValuesUpdated sets the callback function called after a bar updates a
// symbol's calculators
func (e *Engine) SetOnValuesUpdated(callback OnValuesUpdated) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onValuesUpdated = callback
}

// Stop stops the engine
func (e *Engine) Stop() {
	e.cancel()
}

// Context returns the engine's context
func (e *Engine) Context() context.Context {
	return e.ctx
}
