package indicator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/avwap/internal/models"
)

// mockCalculator is a simple mock calculator for testing
type mockCalculator struct {
	name      string
	value     float64
	ready     bool
	processed int
}

func (m *mockCalculator) Name() string {
	return m.name
}

func (m *mockCalculator) Update(bar *models.Bar) Result {
	m.processed++
	m.value = float64(m.processed)
	if m.processed >= 2 {
		m.ready = true
	}
	return Result{Value: decimal.NewFromFloat(m.value), Status: StatusSuccess, Time: bar.End}
}

func (m *mockCalculator) Value() (float64, error) {
	if !m.ready {
		return 0, nil
	}
	return m.value, nil
}

func (m *mockCalculator) IsReady() bool {
	return m.ready
}

func (m *mockCalculator) WarmUpPeriod() int {
	return 2
}

func (m *mockCalculator) Reset() {
	m.processed = 0
	m.value = 0
	m.ready = false
}

func testBar(symbol string, end time.Time) *models.Bar {
	return &models.Bar{
		Symbol: symbol,
		Start:  end.Add(-time.Minute),
		End:    end,
		Open:   100.0,
		High:   105.0,
		Low:    99.0,
		Close:  103.0,
		Volume: 1000,
	}
}

func TestSymbolState_Update(t *testing.T) {
	state := NewSymbolState("AAPL")

	calc := &mockCalculator{name: "test"}
	state.AddCalculator(calc)

	results := state.Update(testBar("AAPL", time.Now()))
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	res, ok := results["test"]
	if !ok {
		t.Fatal("Missing result for calculator 'test'")
	}
	if res.Status != StatusSuccess {
		t.Errorf("Result status = %v, want success", res.Status)
	}
	if calc.processed != 1 {
		t.Errorf("Calculator processed = %d, want 1", calc.processed)
	}
	if state.GetLastUpdate().IsZero() {
		t.Error("Last update time should be set after an update")
	}
}

func TestSymbolState_AddCalculatorReplaces(t *testing.T) {
	state := NewSymbolState("AAPL")

	first := &mockCalculator{name: "avwap_session"}
	state.AddCalculator(first)
	state.Update(testBar("AAPL", time.Now()))

	// Re-registering under the same name swaps the calculator out, which is
	// how stale anchored calculators get replaced on a new session
	second := &mockCalculator{name: "avwap_session"}
	state.AddCalculator(second)
	state.Update(testBar("AAPL", time.Now()))

	if first.processed != 1 {
		t.Errorf("Replaced calculator processed = %d, want 1", first.processed)
	}
	if second.processed != 1 {
		t.Errorf("Replacement calculator processed = %d, want 1", second.processed)
	}
}

func TestSymbolState_GetValue(t *testing.T) {
	state := NewSymbolState("AAPL")

	calc := &mockCalculator{name: "test"}
	state.AddCalculator(calc)

	// Update with 2 bars to make the calculator ready
	state.Update(testBar("AAPL", time.Now()))
	state.Update(testBar("AAPL", time.Now()))

	value, err := state.GetValue("test")
	if err != nil {
		t.Fatalf("Failed to get value: %v", err)
	}
	if value != 2.0 {
		t.Errorf("Expected value 2.0, got %f", value)
	}

	// Get value for non-existent calculator
	value, err = state.GetValue("nonexistent")
	if err != nil {
		t.Errorf("Expected no error for non-existent calculator, got %v", err)
	}
	if value != 0 {
		t.Errorf("Expected 0 for non-existent calculator, got %f", value)
	}
}

func TestSymbolState_GetAllValues(t *testing.T) {
	state := NewSymbolState("AAPL")

	state.AddCalculator(&mockCalculator{name: "test1"})
	notReady := &mockCalculator{name: "test2"}

	// Make test1 ready before registering test2 so only one is ready
	state.Update(testBar("AAPL", time.Now()))
	state.Update(testBar("AAPL", time.Now()))
	state.AddCalculator(notReady)

	values := state.GetAllValues()
	if len(values) != 1 {
		t.Fatalf("Expected 1 ready value, got %d", len(values))
	}
	if values["test1"] != 2.0 {
		t.Errorf("Expected test1 value 2.0, got %f", values["test1"])
	}
	if _, ok := values["test2"]; ok {
		t.Error("Not-ready calculator should be excluded from GetAllValues")
	}
}

func TestSymbolState_CalculatorNames(t *testing.T) {
	state := NewSymbolState("AAPL")
	state.AddCalculator(&mockCalculator{name: "a"})
	state.AddCalculator(&mockCalculator{name: "b"})

	names := state.CalculatorNames()
	if len(names) != 2 {
		t.Errorf("Expected 2 names, got %d", len(names))
	}
}

func TestSymbolState_Reset(t *testing.T) {
	state := NewSymbolState("AAPL")

	calc := &mockCalculator{name: "test"}
	state.AddCalculator(calc)

	state.Update(testBar("AAPL", time.Now()))
	state.Update(testBar("AAPL", time.Now()))

	state.Reset()

	if calc.processed != 0 {
		t.Errorf("Calculator processed = %d after reset, want 0", calc.processed)
	}
	value, _ := state.GetValue("test")
	if value != 0 {
		t.Errorf("Expected value 0 after reset, got %f", value)
	}
	if !state.GetLastUpdate().IsZero() {
		t.Error("Last update time should be cleared by reset")
	}
}

func TestSymbolState_Rehydrate(t *testing.T) {
	state := NewSymbolState("AAPL")

	calc := &mockCalculator{name: "test"}
	state.AddCalculator(calc)

	base := time.Now().Truncate(time.Minute)
	bars := make([]*models.Bar, 5)
	for i := 0; i < 5; i++ {
		bars[i] = testBar("AAPL", base.Add(time.Duration(i)*time.Minute))
	}
	// Bars for other symbols are skipped during replay
	bars[2] = testBar("MSFT", base.Add(2*time.Minute))

	if err := state.Rehydrate(bars); err != nil {
		t.Fatalf("Failed to rehydrate: %v", err)
	}

	if calc.processed != 4 {
		t.Errorf("Calculator processed = %d after rehydration, want 4", calc.processed)
	}
	if !state.GetLastUpdate().Equal(bars[4].End) {
		t.Errorf("Last update = %v, want %v", state.GetLastUpdate(), bars[4].End)
	}
}

func TestSymbolState_IgnoreWrongSymbol(t *testing.T) {
	state := NewSymbolState("AAPL")

	calc := &mockCalculator{name: "test"}
	state.AddCalculator(calc)

	results := state.Update(testBar("MSFT", time.Now()))
	if results != nil {
		t.Errorf("Expected nil results for wrong symbol, got %v", results)
	}
	if calc.processed != 0 {
		t.Errorf("Calculator processed = %d, want 0 (wrong symbol ignored)", calc.processed)
	}
}
