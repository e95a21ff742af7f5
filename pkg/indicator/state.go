package indicator

import (
	"sync"
	"time"

	"github.com/quantfeed/avwap/internal/models"
)

// SymbolState manages indicator state for a single symbol. The calculators
// themselves are single threaded; the state serializes access to them.
type SymbolState struct {
	symbol      string
	mu          sync.RWMutex
	calculators map[string]Calculator
	lastUpdate  time.Time
}

// NewSymbolState creates a new symbol state
func NewSymbolState(symbol string) *SymbolState {
	return &SymbolState{
		symbol:      symbol,
		calculators: make(map[string]Calculator),
	}
}

// Symbol returns the symbol this state belongs to
func (s *SymbolState) Symbol() string {
	return s.symbol
}

// AddCalculator adds a calculator to this symbol's state, replacing any
// existing calculator with the same name
func (s *SymbolState) AddCalculator(calc Calculator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calculators[calc.Name()] = calc
}

// RemoveCalculator removes a calculator from this symbol's state
func (s *SymbolState) RemoveCalculator(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.calculators, name)
}

// Update feeds a new bar to all calculators and returns the result of each,
// keyed by calculator name. Bars for other symbols are ignored.
func (s *SymbolState) Update(bar *models.Bar) map[string]Result {
	if bar == nil {
		return nil
	}

	if bar.Symbol != s.symbol {
		return nil // Ignore bars for different symbols
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	results := make(map[string]Result, len(s.calculators))
	for name, calc := range s.calculators {
		results[name] = calc.Update(bar)
	}

	s.lastUpdate = time.Now()
	return results
}

// GetValue retrieves the current value of an indicator
func (s *SymbolState) GetValue(calculatorName string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	calc, exists := s.calculators[calculatorName]
	if !exists {
		return 0, nil // Return 0 if calculator not found (not an error)
	}

	return calc.Value()
}

// GetAllValues returns all current indicator values that are ready
func (s *SymbolState) GetAllValues() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[string]float64)
	for name, calc := range s.calculators {
		if calc.IsReady() {
			if val, err := calc.Value(); err == nil {
				values[name] = val
			}
		}
	}

	return values
}

// CalculatorNames returns the names of all registered calculators
func (s *SymbolState) CalculatorNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.calculators))
	for name := range s.calculators {
		names = append(names, name)
	}
	return names
}

// GetLastUpdate returns the time of the last update
func (s *SymbolState) GetLastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastUpdate
}

// Reset clears all calculator state while keeping the calculators registered
func (s *SymbolState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, calc := range s.calculators {
		calc.Reset()
	}
	s.lastUpdate = time.Time{}
}

// Rehydrate resets all calculators and replays historical bars through them
// in order. This is used when a worker restarts after the anchor has already
// passed and needs to rebuild the accumulated state.
func (s *SymbolState) Rehydrate(bars []*models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, calc := range s.calculators {
		calc.Reset()
	}

	for _, bar := range bars {
		if bar.Symbol != s.symbol {
			continue
		}
		for _, calc := range s.calculators {
			calc.Update(bar)
		}
	}

	if len(bars) > 0 {
		s.lastUpdate = bars[len(bars)-1].End
	}

	return nil
}
